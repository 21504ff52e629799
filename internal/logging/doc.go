// Package logging provides structured logging helpers for homedash.
//
// All components log through log/slog. This package fixes the attribute
// names used across the codebase and keeps credentials out of log lines.
//
// # Usage Patterns
//
// Create a logger scoped to a session coordinator:
//
//	logger := logging.WithSession(slog.Default(), "calendar", "google")
//	logger.Info("connected", logging.Status(logging.StatusSuccess))
//
// Never log a token directly:
//
//	logger.Debug("credential stored", logging.Token(cred.AccessToken))
package logging
