package experiment

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks required fields, value ranges and the encoder/embedding
// wiring. Every failure is a malformed_config error naming the field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelClass) == "" {
		return malformed("model_class is required", nil)
	}
	if strings.TrimSpace(c.SerializationPrefix) == "" {
		return malformed("model_serialization_prefix is required", nil)
	}
	if c.NumEpochs <= 0 {
		return malformed("num_epochs must be positive", nil)
	}
	if c.BatchSize <= 0 {
		return malformed("batch_size must be positive", nil)
	}
	if c.Patience < 0 {
		return malformed("patience cannot be negative", nil)
	}
	if err := checkDropout("dropout", c.Dropout); err != nil {
		return err
	}
	if len(c.TrainFiles) == 0 {
		return malformed("train_files must list at least one file", nil)
	}
	if err := checkPaths("train_files", c.TrainFiles); err != nil {
		return err
	}
	if err := checkPaths("validation_files", c.ValidationFiles); err != nil {
		return err
	}
	if c.ValidationBackground != "" && len(c.ValidationFiles) == 0 {
		return malformed("validation_background requires validation_files", nil)
	}
	if _, ok := tokenizerNames[c.Tokenizer]; c.Tokenizer != "" && !ok {
		return malformed(fmt.Sprintf("tokenizer %q is not one of %s", c.Tokenizer, strings.Join(TokenizerNames(), ", ")), nil)
	}
	if _, ok := validationMetrics[c.ValidationMetric]; !ok {
		return malformed(fmt.Sprintf("validation_metric %q is not supported", c.ValidationMetric), nil)
	}
	if strings.HasPrefix(c.ValidationMetric, "val_") && len(c.ValidationFiles) == 0 {
		return malformed(fmt.Sprintf("validation_metric %s requires validation_files", c.ValidationMetric), nil)
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validateDataGenerator(); err != nil {
		return err
	}
	if err := c.validateEmbeddings(); err != nil {
		return err
	}
	if err := c.validateEncoders(); err != nil {
		return err
	}
	return c.validateSeq2Seq()
}

func (c *Config) validateOptimizer() error {
	if _, ok := optimizerTypes[c.Optimizer.Type]; !ok {
		return malformed(fmt.Sprintf("optimizer.type %q is not one of %s", c.Optimizer.Type, strings.Join(OptimizerTypes(), ", ")), nil)
	}
	if c.Optimizer.LearningRate < 0 {
		return malformed("optimizer.lr cannot be negative", nil)
	}
	return nil
}

func (c *Config) validateDataGenerator() error {
	g := c.DataGenerator
	if g.AdaptiveBatchSizes {
		if !g.DynamicPadding {
			return malformed("data_generator.adaptive_batch_sizes requires dynamic_padding", nil)
		}
		if g.AdaptiveMemoryUsageConstant <= 0 {
			return malformed("data_generator.adaptive_memory_usage_constant must be positive when adaptive_batch_sizes is set", nil)
		}
	}
	if g.AdaptiveMemoryUsageConstant < 0 {
		return malformed("data_generator.adaptive_memory_usage_constant cannot be negative", nil)
	}
	if g.MaximumBatchSize < 0 {
		return malformed("data_generator.maximum_batch_size cannot be negative", nil)
	}
	if g.PaddingNoise < 0 {
		return malformed("data_generator.padding_noise cannot be negative", nil)
	}
	return nil
}

func (c *Config) validateEmbeddings() error {
	for _, name := range sortedNames(c.Embeddings) {
		spec := c.Embeddings[name]
		if spec.Dimension <= 0 {
			return malformed(fmt.Sprintf("embeddings.%s.dimension must be positive", name), nil)
		}
		if err := checkDropout("embeddings."+name+".dropout", spec.Dropout); err != nil {
			return err
		}
		if spec.FineTune && spec.PretrainedFile == "" {
			return malformed(fmt.Sprintf("embeddings.%s.fine_tune requires pretrained_file", name), nil)
		}
	}
	return nil
}

func (c *Config) validateEncoders() error {
	for _, name := range sortedNames(c.Encoders) {
		spec := c.Encoders[name]
		if spec.Type == "" {
			return malformed(fmt.Sprintf("encoder.%s.type is required", name), nil)
		}
		if _, ok := encoderTypes[spec.Type]; !ok {
			return malformed(fmt.Sprintf("encoder.%s.type %q is not one of %s", name, spec.Type, strings.Join(EncoderTypes(), ", ")), nil)
		}
		consumed := EmbeddingFor(name)
		if _, ok := c.Embeddings[consumed]; !ok {
			return malformed(fmt.Sprintf("encoder.%s reads %s embeddings but embeddings.%s is not configured", name, consumed, consumed), nil)
		}
		if spec.Type == "cnn" || spec.Type == "cnn_highway" {
			if n, ok := spec.Int("num_filters"); ok && n <= 0 {
				return malformed(fmt.Sprintf("encoder.%s.num_filters must be positive", name), nil)
			}
		}
	}
	return nil
}

func (c *Config) validateSeq2Seq() error {
	for _, name := range sortedNames(c.Seq2SeqEncoders) {
		spec := c.Seq2SeqEncoders[name]
		if spec.Type == "" {
			return malformed(fmt.Sprintf("seq2seq_encoder.%s.type is required", name), nil)
		}
		if _, ok := seq2seqTypes[spec.Type]; !ok {
			return malformed(fmt.Sprintf("seq2seq_encoder.%s.type %q is not one of %s", name, spec.Type, strings.Join(Seq2SeqTypes(), ", ")), nil)
		}
		if _, present := spec.EncoderParams["units"]; present {
			if units, ok := spec.Units(); !ok || units <= 0 {
				return malformed(fmt.Sprintf("seq2seq_encoder.%s.encoder_params.units must be a positive integer", name), nil)
			}
		}
	}
	return nil
}

func checkDropout(field string, v float64) error {
	if v < 0 || v >= 1 {
		return malformed(field+" must be in [0, 1)", nil)
	}
	return nil
}

func checkPaths(field string, paths []string) error {
	for i, p := range paths {
		if strings.TrimSpace(p) == "" {
			return malformed(fmt.Sprintf("%s[%d] cannot be empty", field, i), nil)
		}
	}
	return nil
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
