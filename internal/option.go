package internal

// Option configures the application.
type Option func(*application)

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(app *application) {
		app.cfg = cfg
	}
}

// WithForced makes one-shot passes bypass the staleness policy.
func WithForced(forced bool) Option {
	return func(app *application) {
		app.forced = forced
	}
}

// WithFullFetch makes one-shot passes use the full result cap with no
// recency cutoff.
func WithFullFetch(full bool) Option {
	return func(app *application) {
		app.full = full
	}
}
