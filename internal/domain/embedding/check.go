package embedding

import (
	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// CheckDimension compares the configured dimension of an embedding with
// the width of its pretrained file. A projected embedding may differ.
func CheckDimension(name string, spec experiment.EmbeddingSpec, fileDim int) error {
	if spec.Project || spec.Dimension == fileDim {
		return nil
	}
	return apperrors.Wrapf(apperrors.CodeEmbeddingMismatch, nil,
		"embeddings.%s.dimension is %d but %s has %d-dimensional vectors; set project to map between them",
		name, spec.Dimension, spec.PretrainedFile, fileDim)
}
