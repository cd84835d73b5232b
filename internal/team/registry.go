package team

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an engine from a parsed config.
type Constructor func(cfg *Config) (Engine, error)

// UnknownEngineError is returned when a config names an engine type that was
// never registered.
type UnknownEngineError struct {
	EngineType string
	Known      []string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown engine type %q (known: %v)", e.EngineType, e.Known)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds an engine constructor under the given type name. Engines are
// registered at startup; a duplicate name panics because it indicates a wiring
// bug, not a runtime condition.
func Register(engineType string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[engineType]; exists {
		panic(fmt.Sprintf("engine type %q registered twice", engineType))
	}
	registry[engineType] = ctor
}

// New constructs an engine for the given config using the registry.
func New(cfg *Config) (Engine, error) {
	registryMu.RLock()
	ctor, ok := registry[cfg.EngineType]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownEngineError{EngineType: cfg.EngineType, Known: knownEngines()}
	}
	return ctor(cfg)
}

func knownEngines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("mock", func(cfg *Config) (Engine, error) {
		return NewMockEngine(cfg), nil
	})
}
