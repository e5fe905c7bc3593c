package llm

import (
	"fmt"
	"time"
)

// Provider names accepted by NewClient. Configuration resolves to exactly
// one concrete client at startup; there is no runtime fallback between
// providers.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderMock             = "mock"
)

// NewClient builds the one configured client.
func NewClient(provider, baseURL, apiKey string, timeout time.Duration) (Client, error) {
	switch provider {
	case ProviderMock:
		return NewMockClient(), nil
	case ProviderOpenAICompatible, "":
		if baseURL == "" {
			return nil, fmt.Errorf("llm provider %q requires a base URL", ProviderOpenAICompatible)
		}
		return NewHTTPClient(baseURL, apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
