package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/tailscale/hujson"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Load reads and parses the configuration file at path. Failing to read the
// file is a missing_dependency error; everything else is malformed_config.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, apperrors.Wrap(apperrors.CodeMalformedConfig, "config path cannot be empty", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperrors.Wrapf(apperrors.CodeMissingDependency, err, "read config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes comment-tolerant JSON into a validated Config. Referenced
// files are not touched; see VerifyPaths.
func Parse(data []byte) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Config{}, malformed("config is empty", nil)
	}
	value, err := hujson.Parse(data)
	if err != nil {
		return Config{}, malformed("invalid syntax", err)
	}
	value.Standardize()
	standard := value.Pack()
	if err := checkKeys(standard, reflect.TypeOf(Config{}), ""); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	dec := json.NewDecoder(bytes.NewReader(standard))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, malformed("unexpected data after the top-level object", nil)
	}
	if cfg.ValidationMetric == "" {
		cfg.ValidationMetric = "acc"
		if len(cfg.ValidationFiles) > 0 {
			cfg.ValidationMetric = "val_acc"
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		BatchSize: 32,
		Patience:  1,
		DataGenerator: DataGeneratorSpec{
			PaddingNoise:   0.1,
			SortEveryEpoch: true,
		},
		Optimizer:  OptimizerSpec{Type: "adam"},
		SaveModels: true,
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "config"
		}
		return malformed(fmt.Sprintf("%s must be %s, got %s", field, typeErr.Type, typeErr.Value), err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return malformed(fmt.Sprintf("invalid syntax at offset %d", syntaxErr.Offset), err)
	}
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return malformed("unknown field "+strings.TrimPrefix(err.Error(), "json: unknown field "), nil)
	}
	return malformed("cannot decode config", err)
}

func malformed(message string, err error) error {
	return apperrors.Wrap(apperrors.CodeMalformedConfig, message, err)
}
