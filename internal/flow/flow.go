// Package flow holds the guest client's two screens as state machines.
//
// Verification exchanges a booking number for a welcome; Conversation owns
// the message log. Both are driven by qmuntal/stateless machines whose only
// side effect, the assistant call, is an injected gateway.Asker. At most one
// call is in flight per flow instance; a call resolving after the instance
// was closed or reset is discarded.
package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/guest-assistant/internal/logger"
)

var (
	// ErrBusy rejects an operation while a call is in flight or after the
	// flow finished.
	ErrBusy = errors.New("flow: busy")
	// ErrEmptyInput rejects blank input. Nothing reaches the gateway.
	ErrEmptyInput = errors.New("flow: input is empty")
	// ErrInactive rejects operations on a flow that was never started,
	// was closed, or whose session was reset.
	ErrInactive = errors.New("flow: instance is not active")
)

// State is a state of either flow machine.
type State string

type Trigger string

// Screen names the screen a flow asks the screen layer to show.
type Screen string

const (
	ScreenVerification Screen = "verification"
	ScreenConversation Screen = "conversation"
)

// Navigator receives the navigation signals flows emit.
type Navigator interface {
	Navigate(to Screen)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(to Screen)

func (f NavigatorFunc) Navigate(to Screen) { f(to) }

// Router is a Navigator that remembers the last requested screen.
type Router struct {
	mu      sync.Mutex
	current Screen
	changed bool
}

func NewRouter(start Screen) *Router {
	return &Router{current: start}
}

func (r *Router) Navigate(to Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = to
	r.changed = true
}

// Current returns the screen that should be shown.
func (r *Router) Current() Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Take reports whether a navigation happened since the last call.
func (r *Router) Take() (Screen, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.changed
	r.changed = false
	return r.current, changed
}

type options struct {
	onChange         func()
	initialQuery     string
	fallbackGreeting string
}

// Option configures a flow.
type Option func(*options)

// WithOnChange registers fn, called after every committed change of the
// flow's observable state. fn runs without the flow's lock held.
func WithOnChange(fn func()) Option {
	return func(o *options) { o.onChange = fn }
}

// WithInitialQuery overrides the verification query.
func WithInitialQuery(q string) Option {
	return func(o *options) { o.initialQuery = q }
}

// WithFallbackGreeting overrides the greeting used when no welcome was stored.
func WithFallbackGreeting(s string) Option {
	return func(o *options) { o.fallbackGreeting = s }
}

func buildOptions(opts []Option) options {
	o := options{
		onChange:         func() {},
		fallbackGreeting: FallbackGreeting,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onChange == nil {
		o.onChange = func() {}
	}
	return o
}

func logTransitions(name string, sm *stateless.StateMachine) {
	sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.L.Debug("flow transition", "flow", name, "trigger", t.Trigger, "from", t.Source, "to", t.Destination)
	})
}

func canFire(sm *stateless.StateMachine, t Trigger) bool {
	ok, err := sm.CanFire(t)
	return err == nil && ok
}

func fire(sm *stateless.StateMachine, t Trigger) {
	if err := sm.Fire(t); err != nil {
		logger.L.Warn("FSM fire error", "trigger", t, "error", err)
	}
}
