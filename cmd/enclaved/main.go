// Package main is the entry point for the enclave sandbox server.
//
// Usage:
//
//	enclaved
//
// Environment:
//
//	PORT                    HTTP server port (default: 8080)
//	ENCLAVE_CLEANUP_INTERVAL janitor sweep cadence, Go duration syntax (default: 30s)
//	ENCLAVE_IDLE_TTL        idle sandbox reclamation TTL, Go duration syntax (default: 0, disabled)
//	ENCLAVE_ENV             "production" disables pretty console logging
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/cli"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	port := envOr("PORT", "8080")
	cleanupInterval := envDuration("ENCLAVE_CLEANUP_INTERVAL", 30*time.Second)
	idleTTL := envDuration("ENCLAVE_IDLE_TTL", 0)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("ENCLAVE_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	log.Info().Str("version", Version).Str("commit", GitCommit).Msg("enclave sandbox server starting")

	cli.RunServer(port, cleanupInterval, idleTTL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("env", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
