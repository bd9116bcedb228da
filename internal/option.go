package internal

import "log/slog"

// Option configures the application before it starts.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger overrides the default JSON logger. Embedders and tests
// use it to redirect or silence application output.
func WithLogger(log *slog.Logger) Option {
	return func(a *application) {
		a.logger = log
	}
}
