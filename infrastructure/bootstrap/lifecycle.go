// Package bootstrap drives the tool server from start-up to shutdown.
//
// The lifecycle is a statekit statechart:
//
//	unbound -> probing -> bound -> serving -> shutdown
//
// with failed reachable from every non-final state.
package bootstrap

import (
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// Phase is a lifecycle state.
type Phase string

// Lifecycle phases.
const (
	PhaseUnbound  Phase = "unbound"
	PhaseProbing  Phase = "probing"
	PhaseBound    Phase = "bound"
	PhaseServing  Phase = "serving"
	PhaseShutdown Phase = "shutdown"
	PhaseFailed   Phase = "failed"
)

// IsTerminal reports whether no transition leaves the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseShutdown || p == PhaseFailed
}

var allowedTransitions = map[Phase][]Phase{
	PhaseUnbound: {PhaseProbing, PhaseFailed},
	PhaseProbing: {PhaseBound, PhaseFailed},
	PhaseBound:   {PhaseServing, PhaseShutdown, PhaseFailed},
	PhaseServing: {PhaseShutdown, PhaseFailed},
}

// CanTransition reports whether from -> to is part of the lifecycle.
func CanTransition(from, to Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition is one recorded phase change.
type Transition struct {
	From   Phase
	To     Phase
	Reason string
	At     time.Time
}

// Context carries lifecycle data through the machine.
type Context struct {
	Host    string
	Port    int
	Err     error
	Current Phase
	History []Transition
}

// Address returns host:port once a port is bound.
func (c *Context) Address() string {
	if c.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	To     Phase
	Reason string
	Port   int
	Err    error
}

const (
	eventProbe    statekit.EventType = "PROBE"
	eventBind     statekit.EventType = "BIND"
	eventServe    statekit.EventType = "SERVE"
	eventShutdown statekit.EventType = "SHUTDOWN"
	eventFail     statekit.EventType = "FAIL"
)

// EventFor returns the event that moves the machine into phase.
func EventFor(to Phase) statekit.EventType {
	switch to {
	case PhaseProbing:
		return eventProbe
	case PhaseBound:
		return eventBind
	case PhaseServing:
		return eventServe
	case PhaseShutdown:
		return eventShutdown
	case PhaseFailed:
		return eventFail
	default:
		return statekit.EventType(to)
	}
}

func phaseFromEvent(eventType statekit.EventType) Phase {
	switch eventType {
	case eventProbe:
		return PhaseProbing
	case eventBind:
		return PhaseBound
	case eventServe:
		return PhaseServing
	case eventShutdown:
		return PhaseShutdown
	case eventFail:
		return PhaseFailed
	default:
		return Phase(eventType)
	}
}

// NewLifecycleMachine creates the server lifecycle statechart.
func NewLifecycleMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("sfmcp-server").
		WithInitial(statekit.StateID(PhaseUnbound)).
		WithContext(&Context{}).
		WithAction("logEntry", logPhaseEntry).
		WithAction("recordTransition", recordTransition).
		WithGuard("portAssigned", guardPortAssigned).
		State(statekit.StateID(PhaseUnbound)).
			OnEntry("logEntry").
			On(eventProbe).Target(statekit.StateID(PhaseProbing)).Do("recordTransition").
			On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(PhaseProbing)).
			OnEntry("logEntry").
			On(eventBind).Target(statekit.StateID(PhaseBound)).Guard("portAssigned").Do("recordTransition").
			On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(PhaseBound)).
			OnEntry("logEntry").
			On(eventServe).Target(statekit.StateID(PhaseServing)).Do("recordTransition").
			On(eventShutdown).Target(statekit.StateID(PhaseShutdown)).Do("recordTransition").
			On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(PhaseServing)).
			OnEntry("logEntry").
			On(eventShutdown).Target(statekit.StateID(PhaseShutdown)).Do("recordTransition").
			On(eventFail).Target(statekit.StateID(PhaseFailed)).Do("recordTransition").
			Done().
		State(statekit.StateID(PhaseShutdown)).
			Final().
			OnEntry("logEntry").
			Done().
		State(statekit.StateID(PhaseFailed)).
			Final().
			OnEntry("logEntry").
			Done().
		Build()
}

// logPhaseEntry receives **Context because the machine context is itself a pointer.
func logPhaseEntry(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	to := phaseFromEvent(event.Type)
	if payload, ok := event.Payload.(TransitionPayload); ok {
		to = payload.To
	}
	if to == "" {
		return
	}

	logging.Debug().
		Add(logging.Component("bootstrap")).
		Add(logging.State(string(to))).
		Add(logging.Str("address", c.Address())).
		Msg("entered phase")
}

func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	to := phaseFromEvent(event.Type)
	var reason string
	if payload, ok := event.Payload.(TransitionPayload); ok {
		to = payload.To
		reason = payload.Reason
		if payload.Port != 0 {
			c.Port = payload.Port
		}
		if payload.Err != nil {
			c.Err = payload.Err
		}
	}

	c.History = append(c.History, Transition{
		From:   c.Current,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	})
	c.Current = to
}

func guardPortAssigned(ctx *Context, event statekit.Event) bool {
	payload, ok := event.Payload.(TransitionPayload)
	return ok && payload.Port > 0 && payload.Port <= 65535
}

// Lifecycle wraps the statekit interpreter for one server run.
type Lifecycle struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewLifecycle creates a started lifecycle in the unbound phase.
func NewLifecycle(host string) (*Lifecycle, error) {
	machine, err := NewLifecycleMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}

	c := &Context{Host: host, Current: PhaseUnbound}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(cc **Context) {
		*cc = c
	})
	interp.Start()

	return &Lifecycle{interp: interp, ctx: c}, nil
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Phase(l.interp.State().Value)
}

// Context returns the lifecycle context.
func (l *Lifecycle) Context() *Context {
	return l.ctx
}

// IsTerminal reports whether the lifecycle has finished.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interp.Done()
}

func (l *Lifecycle) transition(payload TransitionPayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := Phase(l.interp.State().Value)
	if !CanTransition(from, payload.To) {
		return fmt.Errorf("transition from %s to %s not allowed", from, payload.To)
	}

	l.interp.Send(statekit.Event{Type: EventFor(payload.To), Payload: payload})

	if got := Phase(l.interp.State().Value); got != payload.To {
		return fmt.Errorf("transition from %s to %s rejected", from, payload.To)
	}
	return nil
}

// BeginProbing moves unbound -> probing.
func (l *Lifecycle) BeginProbing() error {
	return l.transition(TransitionPayload{To: PhaseProbing, Reason: "probing ports"})
}

// Bind records the chosen port and moves probing -> bound.
func (l *Lifecycle) Bind(port int) error {
	return l.transition(TransitionPayload{To: PhaseBound, Reason: "port bound", Port: port})
}

// Serve moves bound -> serving.
func (l *Lifecycle) Serve() error {
	return l.transition(TransitionPayload{To: PhaseServing, Reason: "serving"})
}

// Shutdown moves bound or serving -> shutdown.
func (l *Lifecycle) Shutdown(reason string) error {
	return l.transition(TransitionPayload{To: PhaseShutdown, Reason: reason})
}

// Fail moves any non-final phase to failed and records err.
func (l *Lifecycle) Fail(err error) error {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return l.transition(TransitionPayload{To: PhaseFailed, Reason: reason, Err: err})
}

// Stop releases the interpreter.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interp.Stop()
}
