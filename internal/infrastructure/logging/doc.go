// Package logging provides structured logging for the crib agent.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting agent", "thing", thingName)
//	logger.Error("driver failed", "attribute", name, "error", err)
//
// Never log broker credentials or private key material.
package logging
