package spectral

import (
	"fmt"
	"sort"
	"sync"
)

type Factory func() Transformer

var (
	registryLocker sync.Mutex
	registry       = map[string]Factory{}
)

// Register makes a Transformer implementation available by name
// to New. It is expected to be called from init().
func Register(name string, factory Factory) {
	registryLocker.Lock()
	defer registryLocker.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Errorf("there is already registered a transformer with name '%s'", name))
	}
	registry[name] = factory
}

func New(name string) (Transformer, error) {
	registryLocker.Lock()
	factory, ok := registry[name]
	registryLocker.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown transformer '%s', known ones: %v", name, Names())
	}
	return factory(), nil
}

func Names() []string {
	registryLocker.Lock()
	defer registryLocker.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
