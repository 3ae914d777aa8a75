package memory

import "context"

// Strategy is a registered, prioritized unit of cleanup work. Strategies
// are stateless between invocations; lower priorities run first.
type Strategy interface {
	ID() string
	Priority() int
	CanExecute() bool
	Execute(ctx context.Context) (bytesFreed int64, err error)
}

// StrategyResult is the outcome of one strategy invocation.
type StrategyResult struct {
	ID         string
	BytesFreed int64
	Err        error
}

type funcStrategy struct {
	id         string
	priority   int
	canExecute func() bool
	execute    func(ctx context.Context) (int64, error)
}

// NewStrategy builds a Strategy from closures. A nil canExecute means the
// strategy is always executable.
func NewStrategy(id string, priority int, canExecute func() bool, execute func(ctx context.Context) (int64, error)) Strategy {
	return &funcStrategy{id: id, priority: priority, canExecute: canExecute, execute: execute}
}

func (s *funcStrategy) ID() string       { return s.id }
func (s *funcStrategy) Priority() int    { return s.priority }
func (s *funcStrategy) CanExecute() bool { return s.canExecute == nil || s.canExecute() }

func (s *funcStrategy) Execute(ctx context.Context) (int64, error) {
	return s.execute(ctx)
}
