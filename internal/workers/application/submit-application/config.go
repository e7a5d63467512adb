// internal/workers/application/submit-application/config.go
package submitapplication

type Config struct {
	// MaxMessageRunes is the per-message content limit of the workspace.
	// Longer answers are split over consecutive messages.
	MaxMessageRunes int
}

func LoadConfig() *Config {
	return &Config{
		MaxMessageRunes: 2000,
	}
}
