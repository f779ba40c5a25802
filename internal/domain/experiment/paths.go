package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Paths lists every input file the config references: train files,
// validation files, background files, then pretrained embedding files.
func (c Config) Paths() []string {
	paths := make([]string, 0, len(c.TrainFiles)+len(c.ValidationFiles)+len(c.Embeddings)+2)
	paths = append(paths, c.TrainFiles...)
	paths = append(paths, c.ValidationFiles...)
	for _, file := range []string{c.TrainBackground, c.ValidationBackground} {
		if file != "" {
			paths = append(paths, file)
		}
	}
	for _, name := range sortedNames(c.Embeddings) {
		if file := c.Embeddings[name].PretrainedFile; file != "" {
			paths = append(paths, file)
		}
	}
	return paths
}

// VerifyPaths is the training-time check that every referenced input is a
// readable regular file and that the serialization prefix's directory exists
// or can be created. Parse never calls it.
func (c Config) VerifyPaths() error {
	var (
		problems []string
		errs     []error
	)
	for _, path := range c.Paths() {
		if err := checkReadable(path); err != nil {
			problems = append(problems, path)
			errs = append(errs, err)
		}
	}
	if dir := filepath.Dir(c.SerializationPrefix); dir != "" {
		if err := checkCreatableDir(dir); err != nil {
			problems = append(problems, dir)
			errs = append(errs, err)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return apperrors.Wrap(apperrors.CodeMissingDependency, "unavailable paths: "+strings.Join(problems, ", "), errors.Join(errs...))
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// checkCreatableDir accepts an existing directory, or a missing one whose
// nearest existing ancestor is a writable directory.
func checkCreatableDir(dir string) error {
	path := dir
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", path)
			}
			if path == dir {
				return nil
			}
			return checkWritable(path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return fmt.Errorf("%s has no existing parent directory", dir)
		}
		path = parent
	}
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".qa-trainer-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
