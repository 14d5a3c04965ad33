package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/macross/internal/core"
	"go.uber.org/zap"
)

// Engine is the registry of available strategies. Each Build returns a fresh
// instance so concurrent backtests never share strategy parameters.
type Engine struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a strategy factory under the name its instances report
func (e *Engine) Register(f Factory) {
	name := f().Name()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories[name] = f
}

// Has reports whether a strategy is registered
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.factories[name]
	return ok
}

// Names returns registered strategy names in sorted order
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]string, 0, len(e.factories))
	for name := range e.factories {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Build creates and configures a new instance of the named strategy
func (e *Engine) Build(name string, cfg Config) (Strategy, error) {
	e.mu.RLock()
	f, ok := e.factories[name]
	e.mu.RUnlock()

	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("%q", name))
	}

	s := f()
	if err := s.Init(cfg); err != nil {
		e.logger.Warn("strategy init failed",
			zap.String("strategy", name),
			zap.Error(err),
		)
		return nil, err
	}
	return s, nil
}
