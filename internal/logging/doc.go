// Package logging provides the structured logger used across spe.
//
// It wraps log/slog so every component logs key/value pairs with the same
// default fields:
//
//	log := logging.New(cfg.Logging, version)
//	log.With("component", "remote").Info("logged in", "email", email)
package logging
