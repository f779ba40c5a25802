package training

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointEncoding(t *testing.T) {
	data, err := EncodeCheckpoint(Checkpoint{ModelClass: "MajorityClassifier", Epoch: 3, Metric: 0.75, Weights: []byte(`{"a":1}`)})
	require.NoError(t, err)
	require.Equal(t, byte(0x78), data[0], "zlib header")

	ckpt, err := DecodeCheckpoint(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 3, ckpt.Epoch)
	require.JSONEq(t, `{"a":1}`, string(ckpt.Weights))

	_, err = DecodeCheckpoint(bytes.NewReader([]byte("plain")))
	require.Error(t, err)

	require.Equal(t, "models/bidaf_weights_epoch=4.ckpt", EpochWeightsKey("models/bidaf", 4))
	require.Equal(t, "models/bidaf_weights.ckpt", BestWeightsKey("models/bidaf"))
	require.Equal(t, "models/bidaf_config.json", ConfigKey("models/bidaf"))
	require.Equal(t, "models/bidaf_data_indexer.json", IndexerKey("models/bidaf"))
}
