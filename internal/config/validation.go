package config

import "fmt"

// Validate checks configuration values, failing fast with sentinel errors
// that callers can match with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Backend {
	case BackendFlat, BackendPgvector:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidBackend, c.Backend, BackendFlat, BackendPgvector)
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}

	if c.TopK < 1 || c.TopK > 10 {
		return fmt.Errorf("%w: %d (must be 1-10)", ErrInvalidTopK, c.TopK)
	}

	if c.MaxContextTokens < 100 || c.MaxContextTokens > 128000 {
		return fmt.Errorf("%w: %d (must be 100-128000)", ErrInvalidMaxContextTokens, c.MaxContextTokens)
	}

	// PostgreSQL settings only matter for the pgvector backend.
	if c.Backend == BackendPgvector {
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: name is empty", ErrInvalidPostgresDBName)
		}
	}

	return nil
}
