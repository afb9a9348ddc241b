package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Factory maps provider names to constructors. The set is closed: names not
// registered here are rejected at config load.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// DefaultFactory returns a factory with every built-in adapter registered.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register("openrouter", func(cred string, c *Client) (Provider, error) { return NewOpenRouter(cred, c), nil })
	f.Register("wxrank", func(cred string, c *Client) (Provider, error) { return NewWxRank(cred, c), nil })
	f.Register("volc", func(cred string, c *Client) (Provider, error) { return NewVolc(cred, c) })
	f.Register("aliyun", func(cred string, c *Client) (Provider, error) { return NewAliyun(cred, c) })
	f.Register("tikhub", func(cred string, c *Client) (Provider, error) { return NewTikHub(cred, c), nil })
	f.Register("uniapi", func(cred string, c *Client) (Provider, error) { return NewUniAPI(cred, c), nil })
	return f
}

// Register adds or replaces a constructor.
func (f *Factory) Register(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

// Known reports whether name has a constructor.
func (f *Factory) Known(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[name]
	return ok
}

// Names returns the registered provider names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a provider bound to credential.
func (f *Factory) New(name, credential string, client *Client) (Provider, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, err := ctor(credential, client)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", name, err)
	}
	return p, nil
}
