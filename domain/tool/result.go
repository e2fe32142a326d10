package tool

import "time"

// Result is the outcome of one tool execution as shown to the model.
type Result struct {
	// Content is the text returned by the tool.
	Content string `json:"content"`

	// IsError marks Content as an error description.
	IsError bool `json:"is_error,omitempty"`

	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
}

// NewResult creates a successful result.
func NewResult(content string) Result {
	return Result{Content: content}
}

// NewErrorResult creates a result carrying an error message.
func NewErrorResult(err error) Result {
	if err == nil {
		return Result{IsError: true}
	}
	return Result{Content: err.Error(), IsError: true}
}

// WithDuration returns a copy of r with Duration set.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}
