package llm

import (
	"fmt"
)

// Factory builds a Provider from a provider config entry. Registered by
// the concrete provider packages at wiring time to avoid import cycles.
type Factory func() (Provider, error)

// BuildChain constructs providers from the given factories, skipping
// failed ones, and returns them with their names. At least one provider
// must construct successfully.
func BuildChain(factories map[string]Factory, order []string) ([]Provider, []string, error) {
	var providers []Provider
	var names []string
	var firstErr error

	for _, name := range order {
		f, ok := factories[name]
		if !ok {
			continue
		}
		p, err := f()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		providers = append(providers, p)
		names = append(names, name)
	}

	if len(providers) == 0 {
		if firstErr != nil {
			return nil, nil, fmt.Errorf("no usable LLM providers: %w", firstErr)
		}
		return nil, nil, fmt.Errorf("no LLM providers configured")
	}
	return providers, names, nil
}
