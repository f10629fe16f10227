package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Validator is implemented by configuration structs that check their own
// invariants after parsing.
type Validator interface {
	Validate() error
}

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Any dotenv files given are read first; missing files are ignored and values
// already present in the environment win over values from the files. If cfg
// implements Validator, Validate is called after parsing.
//
// Example:
//
//	type Config struct {
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any, dotenvFiles ...string) error {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load dotenv %s: %w", file, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
