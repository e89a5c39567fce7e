// Package config loads service configuration from the environment.
//
// A .env file in the working directory is read once, if present, before any
// struct is parsed. Variables already set in the process environment win.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("config: nil pointer")
	ErrParsingConfig = errors.New("config: parse failed")
)

var dotenvOnce sync.Once

func loadDotenv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// Load fills v from `env` struct tags.
//
//	type Config struct {
//		Port        string `env:"PORT" envDefault:"8080"`
//		DatabaseURL string `env:"DATABASE_URL"`
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDotenv()
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// ValidPort checks that v is a TCP port number.
func ValidPort(key, v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return nil
}
