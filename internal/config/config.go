package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, resolved once at startup.
// Values come from the environment; main loads a .env file first in dev.
type Config struct {
	Env         string
	Port        string
	DatabaseDSN string
	JWTSecret   string
	AI          AIConfig
}

// AIConfig is the model-provider configuration handed to the generation
// services at construction time. Keeping it an explicit value (rather than
// os.Getenv calls inside the services) is what makes the stream controller
// testable against a fake provider.
type AIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModels []string
	StreamTimeout  time.Duration
	Environment    string
}

// Models returns the model list to try, primary first, duplicates removed.
func (c AIConfig) Models() []string {
	out := make([]string, 0, 1+len(c.FallbackModels))
	seen := make(map[string]bool)
	for _, m := range append([]string{c.Model}, c.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ProductionLike reports whether diagnostic detail should be withheld from
// caller-visible errors.
func (c AIConfig) ProductionLike() bool {
	switch strings.ToLower(c.Environment) {
	case "prod", "production", "staging":
		return true
	}
	return false
}

func Load() (*Config, error) {
	env := getenv("APP_ENV", "development")

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	streamTimeout := 120 * time.Second
	if raw := os.Getenv("AI_STREAM_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid AI_STREAM_TIMEOUT_SECONDS: %q", raw)
		}
		streamTimeout = time.Duration(secs) * time.Second
	}

	var fallbacks []string
	for _, m := range strings.Split(os.Getenv("AI_FALLBACK_MODELS"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			fallbacks = append(fallbacks, m)
		}
	}

	return &Config{
		Env:         env,
		Port:        getenv("PORT", "8080"),
		DatabaseDSN: getenv("DATABASE_DSN", "host=localhost user=postgres password=password dbname=applytrack port=5432 sslmode=disable"),
		JWTSecret:   jwtSecret,
		AI: AIConfig{
			APIKey:         os.Getenv("AI_API_KEY"),
			BaseURL:        getenv("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:          getenv("AI_MODEL", "gpt-4o-mini"),
			FallbackModels: fallbacks,
			StreamTimeout:  streamTimeout,
			Environment:    env,
		},
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
