package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Settings are the generation knobs shared by every provider.
type Settings struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type ProviderFactory func(s Settings) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Get(name string, s Settings) (Provider, error) {
	name = normalizeName(name)
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(s)
}

// Gateway resolves the named provider once; the result is reused for the
// lifetime of the process.
func (r *Registry) Gateway(name string, s Settings, systemPrompt string) (*Gateway, error) {
	p, err := r.Get(name, s)
	if err != nil {
		return nil, err
	}
	return NewGateway(normalizeName(name), p, systemPrompt), nil
}
