package experiment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Config is the Training Configuration consumed by a training run. It is
// built once by Load/Parse and treated as read-only afterwards; use Clone
// before handing it to code that might mutate maps or slices.
type Config struct {
	ModelClass          string                   `json:"model_class"`
	SerializationPrefix string                   `json:"model_serialization_prefix"`
	Encoders            map[string]EncoderSpec   `json:"encoder,omitempty"`
	Embeddings          map[string]EmbeddingSpec `json:"embeddings,omitempty"`
	Seq2SeqEncoders     map[string]Seq2SeqSpec   `json:"seq2seq_encoder,omitempty"`
	DataGenerator       DataGeneratorSpec        `json:"data_generator"`
	BatchSize           int                      `json:"batch_size"`
	Dropout             float64                  `json:"dropout"`
	Patience            int                      `json:"patience"`
	NumEpochs           int                      `json:"num_epochs"`
	Optimizer           OptimizerSpec            `json:"optimizer"`
	TrainFiles          []string                 `json:"train_files"`
	ValidationFiles     []string                 `json:"validation_files,omitempty"`
	// TrainBackground and ValidationBackground attach background sentences
	// to indexed text classification instances.
	TrainBackground      string `json:"train_background,omitempty"`
	ValidationBackground string `json:"validation_background,omitempty"`
	// Tokenizer is "words", "characters" or "words and characters". Empty
	// picks one from the configured encoders.
	Tokenizer        string `json:"tokenizer,omitempty"`
	SaveModels       bool   `json:"save_models"`
	ValidationMetric string `json:"validation_metric"`
}

// EmbeddingSpec configures one embedding table (words, characters).
type EmbeddingSpec struct {
	Dimension      int     `json:"dimension"`
	PretrainedFile string  `json:"pretrained_file,omitempty"`
	Project        bool    `json:"project"`
	FineTune       bool    `json:"fine_tune"`
	Dropout        float64 `json:"dropout"`
}

// Seq2SeqSpec configures a sequence-to-sequence encoder.
type Seq2SeqSpec struct {
	Type          string         `json:"type"`
	EncoderParams map[string]any `json:"encoder_params"`
	WrapperParams map[string]any `json:"wrapper_params"`
}

// Units returns encoder_params.units when it is a whole number.
func (s Seq2SeqSpec) Units() (int, bool) {
	return intParam(s.EncoderParams, "units")
}

// DataGeneratorSpec is the batching policy.
type DataGeneratorSpec struct {
	DynamicPadding              bool    `json:"dynamic_padding"`
	AdaptiveBatchSizes          bool    `json:"adaptive_batch_sizes"`
	AdaptiveMemoryUsageConstant int     `json:"adaptive_memory_usage_constant,omitempty"`
	MaximumBatchSize            int     `json:"maximum_batch_size,omitempty"`
	PaddingNoise                float64 `json:"padding_noise"`
	SortEveryEpoch              bool    `json:"sort_every_epoch"`
	BiggestBatchFirst           bool    `json:"biggest_batch_first"`
}

// OptimizerSpec selects the optimizer and its learning rate.
type OptimizerSpec struct {
	Type         string  `json:"type"`
	LearningRate float64 `json:"lr,omitempty"`
}

// EncoderSpec is an encoder type plus its type specific hyperparameters.
type EncoderSpec struct {
	Type   string
	Params map[string]any
}

// UnmarshalJSON splits the "type" key from the remaining hyperparameters.
func (s *EncoderSpec) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["type"]
	if ok {
		typ, isString := raw.(string)
		if !isString {
			return fmt.Errorf("type must be a string, got %T", raw)
		}
		s.Type = typ
		delete(fields, "type")
	}
	if len(fields) > 0 {
		s.Params = fields
	}
	return nil
}

// MarshalJSON writes the spec back in its flat file form.
func (s EncoderSpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Params)+1)
	for k, v := range s.Params {
		out[k] = v
	}
	out["type"] = s.Type
	return json.Marshal(out)
}

// Int returns a whole-number hyperparameter.
func (s EncoderSpec) Int(name string) (int, bool) {
	return intParam(s.Params, name)
}

func intParam(params map[string]any, name string) (int, bool) {
	raw, ok := params[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// EmbeddingFor names the embedding table an encoder reads from. The "word"
// encoder builds word vectors out of characters; every other encoder runs
// over word embeddings.
func EmbeddingFor(encoderName string) string {
	if encoderName == "word" {
		return "characters"
	}
	return "words"
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.Encoders != nil {
		out.Encoders = make(map[string]EncoderSpec, len(c.Encoders))
		for name, spec := range c.Encoders {
			out.Encoders[name] = EncoderSpec{Type: spec.Type, Params: cloneParams(spec.Params)}
		}
	}
	if c.Embeddings != nil {
		out.Embeddings = make(map[string]EmbeddingSpec, len(c.Embeddings))
		for name, spec := range c.Embeddings {
			out.Embeddings[name] = spec
		}
	}
	if c.Seq2SeqEncoders != nil {
		out.Seq2SeqEncoders = make(map[string]Seq2SeqSpec, len(c.Seq2SeqEncoders))
		for name, spec := range c.Seq2SeqEncoders {
			out.Seq2SeqEncoders[name] = Seq2SeqSpec{
				Type:          spec.Type,
				EncoderParams: cloneParams(spec.EncoderParams),
				WrapperParams: cloneParams(spec.WrapperParams),
			}
		}
	}
	out.TrainFiles = append([]string(nil), c.TrainFiles...)
	if c.ValidationFiles != nil {
		out.ValidationFiles = append([]string(nil), c.ValidationFiles...)
	}
	return out
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	// Values come from encoding/json, so a marshal round trip is a faithful deep copy.
	data, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

// Field is one flattened key/value pair of a config.
type Field struct {
	Key   string
	Value string
}

// Summary flattens the config for logs and CLI output, sorted by key.
func (c Config) Summary() []Field {
	fields := []Field{
		{"model_class", c.ModelClass},
		{"model_serialization_prefix", c.SerializationPrefix},
		{"batch_size", strconv.Itoa(c.BatchSize)},
		{"dropout", formatFloat(c.Dropout)},
		{"patience", strconv.Itoa(c.Patience)},
		{"num_epochs", strconv.Itoa(c.NumEpochs)},
		{"optimizer.type", c.Optimizer.Type},
		{"optimizer.lr", formatFloat(c.Optimizer.LearningRate)},
		{"data_generator.dynamic_padding", strconv.FormatBool(c.DataGenerator.DynamicPadding)},
		{"data_generator.adaptive_batch_sizes", strconv.FormatBool(c.DataGenerator.AdaptiveBatchSizes)},
		{"data_generator.adaptive_memory_usage_constant", strconv.Itoa(c.DataGenerator.AdaptiveMemoryUsageConstant)},
		{"data_generator.maximum_batch_size", strconv.Itoa(c.DataGenerator.MaximumBatchSize)},
		{"train_files", strings.Join(c.TrainFiles, ",")},
		{"validation_files", strings.Join(c.ValidationFiles, ",")},
		{"save_models", strconv.FormatBool(c.SaveModels)},
		{"validation_metric", c.ValidationMetric},
	}
	if c.TrainBackground != "" {
		fields = append(fields, Field{"train_background", c.TrainBackground})
	}
	if c.ValidationBackground != "" {
		fields = append(fields, Field{"validation_background", c.ValidationBackground})
	}
	if c.Tokenizer != "" {
		fields = append(fields, Field{"tokenizer", c.Tokenizer})
	}
	for name, spec := range c.Encoders {
		fields = append(fields, Field{"encoder." + name + ".type", spec.Type})
	}
	for name, spec := range c.Seq2SeqEncoders {
		fields = append(fields, Field{"seq2seq_encoder." + name + ".type", spec.Type})
	}
	for name, spec := range c.Embeddings {
		fields = append(fields, Field{"embeddings." + name + ".dimension", strconv.Itoa(spec.Dimension)})
		if spec.PretrainedFile != "" {
			fields = append(fields, Field{"embeddings." + name + ".pretrained_file", spec.PretrainedFile})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
