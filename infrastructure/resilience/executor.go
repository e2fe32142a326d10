// Package resilience bounds concurrent remote calls using fortify.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"

	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// Executor runs operations behind a bulkhead with a per-call timeout.
// Failures are returned as-is; nothing is retried.
type Executor struct {
	bulkhead bulkhead.Bulkhead[any]
	timeout  time.Duration
}

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent executions.
	MaxConcurrent int

	// MaxQueue is how many calls may wait for a free slot before
	// further calls are rejected.
	MaxQueue int

	// QueueTimeout bounds the wait for a slot. Zero waits until ctx ends.
	QueueTimeout time.Duration

	// Timeout bounds each execution. Zero disables it.
	Timeout time.Duration
}

// DefaultExecutorConfig returns the defaults used by the tool server.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent: 10,
		MaxQueue:      1000,
		QueueTimeout:  120 * time.Second,
		Timeout:       120 * time.Second,
	}
}

// NewExecutor creates a new executor.
func NewExecutor(config ExecutorConfig) *Executor {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	maxQueue := config.MaxQueue
	if maxQueue < 0 {
		maxQueue = 0
	}

	return &Executor{
		bulkhead: bulkhead.New[any](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxQueue,
			QueueTimeout:  config.QueueTimeout,
			OnRejected: func() {
				logging.Warn().
					Add(logging.Component("resilience")).
					Add(logging.Int("max_concurrent", maxConcurrent)).
					Add(logging.Int("max_queue", maxQueue)).
					Msg("call rejected by bulkhead")
			},
		}),
		timeout: config.Timeout,
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// Timeout returns the per-call timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs fn under the bulkhead. name only labels log lines.
func (e *Executor) Execute(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	start := time.Now()

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (any, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return fn(ctx)
	})

	logging.Debug().
		Add(logging.Component("resilience")).
		Add(logging.ToolName(name)).
		Add(logging.Duration(time.Since(start))).
		Add(logging.ErrorField(err)).
		Msg("execution finished")

	return result, err
}

// Do is the typed form of Executor.Execute.
func Do[T any](ctx context.Context, e *Executor, name string, fn func(context.Context) (T, error)) (T, error) {
	out, err := e.Execute(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
