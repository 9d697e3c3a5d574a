// Moderation scoring backends.
//
// Each backend maps its native response in to the uniform automod.Result. Backends are resolved once,
// when configuration is loaded, by New.
package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/contentmod/contentmod/automod"
)

// Resolves the configured provider. Returns an error wrapping automod.ErrConfiguration for unknown
// provider names or missing credentials.
func New(config *automod.Config) (automod.Provider, error) {
	if err := config.ValidateProvider(); err != nil {
		return nil, err
	}
	switch config.Provider {
	case automod.ProviderOpenAI:
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key is required", automod.ErrConfiguration)
		}
		return NewOpenAIClient(config.OpenAIAPIKey, config.Sensitivity), nil
	case automod.ProviderGemini:
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: Gemini API key is required", automod.ErrConfiguration)
		}
		return NewGeminiClient(config.GeminiAPIKey, config.GeminiModel, config.Sensitivity), nil
	case automod.ProviderLocal:
		return NewLocalRules(config.BlocklistWords, config.Sensitivity), nil
	default:
		return nil, fmt.Errorf("%w: unknown AI provider: %q", automod.ErrConfiguration, config.Provider)
	}
}

// Category names with a score at or above threshold, sorted.
func violations(scores map[string]float64, threshold float64) []string {
	var out []string
	for cat, score := range scores {
		if score >= threshold {
			out = append(out, cat)
		}
	}
	sort.Strings(out)
	return out
}

func maxScore(scores map[string]float64) float64 {
	max := 0.0
	for _, score := range scores {
		if score > max {
			max = score
		}
	}
	return max
}

func clampScore(s float64) float64 {
	if s < 0.0 {
		return 0.0
	}
	if s > 1.0 {
		return 1.0
	}
	return s
}

func flaggedReason(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	return "Content flagged for: " + strings.Join(categories, ", ")
}

func providerLogger(name string) *slog.Logger {
	return slog.Default().With("provider", name)
}
