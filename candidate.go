package imgguard

import "fmt"

// candidate is a provider eligible to serve a request.
type candidate struct {
	provider  Provider
	requested bool
}

func (c candidate) name() string { return c.provider.Name() }

// buildCandidates returns the providers to try, in priority order. A named
// provider yields exactly one candidate so that it never falls back.
func buildCandidates(cfg Config, providers map[string]Provider, requested string) ([]candidate, error) {
	if requested != "" {
		pc, ok := cfg.Provider(requested)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownProvider, requested)
		}
		return []candidate{{provider: providers[pc.Name], requested: true}}, nil
	}

	candidates := make([]candidate, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		candidates = append(candidates, candidate{provider: providers[pc.Name]})
	}
	return candidates, nil
}
