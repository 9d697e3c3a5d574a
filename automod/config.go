package automod

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// What to do with a record once it has been scored.
type ActionPolicy string

const (
	ActionFlag   ActionPolicy = "flag"
	ActionHide   ActionPolicy = "hide"
	ActionDelete ActionPolicy = "delete"
)

// Immutable moderation configuration. Constructed once at startup and passed by reference to every component.
type Config struct {
	// Collection which is moderated (eg, "posts", or "users/123/comments")
	CollectionPath string
	// Name of the record field containing text to moderate
	TextField string
	// Name of the record field where moderation metadata is written
	ModerationField string

	Provider       string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	GeminiModel    string
	BlocklistWords string

	Action ActionPolicy
	// Category scores at or above this threshold count as violations. Between 0.0 and 1.0.
	Sensitivity float64

	EnableEvents bool
	DoBackfill   bool
}

func DefaultConfig() Config {
	return Config{
		ModerationField: "moderation",
		Provider:        ProviderLocal,
		GeminiModel:     "gemini-1.5-flash",
		Action:          ActionFlag,
		Sensitivity:     0.5,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.CollectionPath) == "" {
		return fmt.Errorf("%w: collection path is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.TextField) == "" {
		return fmt.Errorf("%w: text field is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.ModerationField) == "" {
		return fmt.Errorf("%w: moderation field is required", ErrConfiguration)
	}
	switch c.Action {
	case ActionFlag, ActionHide, ActionDelete:
	default:
		return fmt.Errorf("%w: unknown moderation action: %q", ErrConfiguration, c.Action)
	}
	return c.ValidateProvider()
}

// Checks only the settings a provider is built from, for callers which score text without touching a
// collection.
func (c *Config) ValidateProvider() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderLocal:
	default:
		return fmt.Errorf("%w: unknown AI provider: %q", ErrConfiguration, c.Provider)
	}
	if c.Sensitivity < 0.0 || c.Sensitivity > 1.0 {
		return fmt.Errorf("%w: sensitivity must be between 0.0 and 1.0, got %v", ErrConfiguration, c.Sensitivity)
	}
	return nil
}
