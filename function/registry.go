package function

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a function with default parameter values.
type Factory func() Function

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"Gaussian":         func() Function { return NewGaussian(1, 0, 1) },
		"Lorentzian":       func() Function { return NewLorentzian(1, 0, 1) },
		"ExpDecayOsc":      func() Function { return NewExpDecayOsc(0.2, 0.2, 0.1, 0) },
		"FlatBackground":   func() Function { return NewFlatBackground(0) },
		"LinearBackground": func() Function { return NewLinearBackground(0, 0) },
	}
)

// New creates the function registered under name.
func New(name string) (Function, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return factory(), nil
}

// NewPeak creates the function registered under name and checks it is a peak.
func NewPeak(name string) (PeakFunction, error) {
	f, err := New(name)
	if err != nil {
		return nil, err
	}
	peak, ok := f.(PeakFunction)
	if !ok {
		return nil, fmt.Errorf("function: %q is not a peak function", name)
	}
	return peak, nil
}

// Register adds a factory under name.
func Register(name string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, name)
	}
	registry[name] = factory
	return nil
}

// Names returns the registered function names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
