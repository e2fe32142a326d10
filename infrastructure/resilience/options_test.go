package resilience

import (
	"testing"
	"time"
)

func TestWithMaxConcurrent(t *testing.T) {
	t.Parallel()

	config := DefaultExecutorConfig()
	WithMaxConcurrent(20)(&config)

	if config.MaxConcurrent != 20 {
		t.Errorf("MaxConcurrent = %d, want 20", config.MaxConcurrent)
	}
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	config := DefaultExecutorConfig()
	WithTimeout(5 * time.Second)(&config)

	if config.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", config.Timeout)
	}
}

func TestWithQueueOptions(t *testing.T) {
	t.Parallel()

	config := DefaultExecutorConfig()
	WithMaxQueue(3)(&config)
	WithQueueTimeout(time.Second)(&config)

	if config.MaxQueue != 3 {
		t.Errorf("MaxQueue = %d, want 3", config.MaxQueue)
	}
	if config.QueueTimeout != time.Second {
		t.Errorf("QueueTimeout = %v, want 1s", config.QueueTimeout)
	}
}

func TestNewExecutorWithOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		opts        []Option
		wantTimeout time.Duration
	}{
		{name: "defaults", wantTimeout: 120 * time.Second},
		{name: "timeout", opts: []Option{WithTimeout(time.Second)}, wantTimeout: time.Second},
		{
			name:        "last option wins",
			opts:        []Option{WithTimeout(time.Second), WithTimeout(2 * time.Second)},
			wantTimeout: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			executor := NewExecutorWithOptions(tt.opts...)
			if executor.Timeout() != tt.wantTimeout {
				t.Errorf("Timeout() = %v, want %v", executor.Timeout(), tt.wantTimeout)
			}
		})
	}
}
