package experiment

import "sort"

var encoderTypes = map[string]struct{}{
	"bow":           {},
	"lstm":          {},
	"gru":           {},
	"bi_gru":        {},
	"cnn":           {},
	"cnn_highway":   {},
	"positional":    {},
	"attentive_gru": {},
	"tree_lstm":     {},
}

var seq2seqTypes = map[string]struct{}{
	"lstm":    {},
	"gru":     {},
	"bi_lstm": {},
	"bi_gru":  {},
}

var optimizerTypes = map[string]struct{}{
	"sgd":      {},
	"rmsprop":  {},
	"adagrad":  {},
	"adadelta": {},
	"adam":     {},
	"adamax":   {},
	"nadam":    {},
}

var tokenizerNames = map[string]struct{}{
	"words":                {},
	"characters":           {},
	"words and characters": {},
}

var validationMetrics = map[string]struct{}{
	"val_acc":  {},
	"val_loss": {},
	"acc":      {},
	"loss":     {},
}

// EncoderTypes lists the accepted encoder "type" values.
func EncoderTypes() []string { return sortedKeys(encoderTypes) }

// Seq2SeqTypes lists the accepted seq2seq_encoder "type" values.
func Seq2SeqTypes() []string { return sortedKeys(seq2seqTypes) }

// OptimizerTypes lists the accepted optimizer "type" values.
func OptimizerTypes() []string { return sortedKeys(optimizerTypes) }

// TokenizerNames lists the accepted "tokenizer" values.
func TokenizerNames() []string { return sortedKeys(tokenizerNames) }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
