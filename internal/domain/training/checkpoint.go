package training

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Checkpoint is the envelope written for each saved set of weights.
type Checkpoint struct {
	ModelClass string          `json:"model_class"`
	Epoch      int             `json:"epoch"`
	Metric     float64         `json:"metric"`
	Weights    json.RawMessage `json:"weights"`
}

// EncodeCheckpoint serialises c as zlib compressed JSON.
func EncodeCheckpoint(c Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(c); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCheckpoint reverses EncodeCheckpoint.
func DecodeCheckpoint(r io.Reader) (Checkpoint, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return Checkpoint{}, err
	}
	defer zr.Close()
	var c Checkpoint
	if err := json.NewDecoder(zr).Decode(&c); err != nil {
		return Checkpoint{}, err
	}
	return c, nil
}

// EpochWeightsKey names the checkpoint of one epoch under a serialization prefix.
func EpochWeightsKey(prefix string, epoch int) string {
	return fmt.Sprintf("%s_weights_epoch=%d.ckpt", prefix, epoch)
}

func BestWeightsKey(prefix string) string { return prefix + "_weights.ckpt" }

func ConfigKey(prefix string) string { return prefix + "_config.json" }

func IndexerKey(prefix string) string { return prefix + "_data_indexer.json" }
