package flow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/gateway"
	"github.com/comigor/guest-assistant/internal/logger"
	"github.com/comigor/guest-assistant/internal/session"
)

// Verification states. StateFailed is a substate of StateEditing: a failed
// flow is editing, with an error to show.
const (
	StateEditing    State = "Editing"
	StateSubmitting State = "Submitting"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
)

const (
	TriggerSubmit   Trigger = "Submit"
	TriggerVerified Trigger = "Verified"
	TriggerRejected Trigger = "Rejected"
)

// SessionSaveFailureMessage is shown when the verified session could not be
// written to the store.
const SessionSaveFailureMessage = "Could not start your session. Please try again."

// VerificationSnapshot is a copy of the observable verification state.
type VerificationSnapshot struct {
	State         State
	BookingNumber string
	Error         string
}

// Verification drives booking number entry and the first assistant call.
type Verification struct {
	store session.Store
	asker gateway.Asker
	nav   Navigator
	opts  options

	mu        sync.Mutex
	fsm       *stateless.StateMachine
	candidate string
	errMsg    string
	closed    bool
	inflight  sync.WaitGroup
}

func NewVerification(store session.Store, asker gateway.Asker, nav Navigator, opts ...Option) (*Verification, error) {
	if store == nil {
		return nil, errors.New("flow: session store must not be nil")
	}
	if asker == nil {
		return nil, errors.New("flow: asker must not be nil")
	}
	if nav == nil {
		return nil, errors.New("flow: navigator must not be nil")
	}
	o := buildOptions(opts)
	if strings.TrimSpace(o.initialQuery) == "" {
		o.initialQuery = config.DefaultInitialQuery
	}

	sm := stateless.NewStateMachine(StateEditing)
	sm.Configure(StateEditing).
		Permit(TriggerSubmit, StateSubmitting)
	sm.Configure(StateFailed).
		SubstateOf(StateEditing)
	sm.Configure(StateSubmitting).
		Permit(TriggerVerified, StateSucceeded).
		Permit(TriggerRejected, StateFailed)
	logTransitions("verification", sm)

	return &Verification{store: store, asker: asker, nav: nav, opts: o, fsm: sm}, nil
}

// UpdateBookingNumber stores the uppercased candidate. It is always allowed;
// a call already in flight keeps the number it was started with.
func (v *Verification) UpdateBookingNumber(raw string) {
	v.mu.Lock()
	v.candidate = strings.ToUpper(raw)
	v.mu.Unlock()
	v.opts.onChange()
}

// Submit starts verification of the current candidate and returns without
// waiting for the assistant. On success the session is saved and the
// navigator is sent to the conversation screen.
func (v *Verification) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrInactive
	}
	if !canFire(v.fsm, TriggerSubmit) {
		v.mu.Unlock()
		return ErrBusy
	}
	candidate := v.candidate
	if strings.TrimSpace(candidate) == "" {
		v.mu.Unlock()
		return ErrEmptyInput
	}
	v.errMsg = ""
	fire(v.fsm, TriggerSubmit)
	v.inflight.Add(1)
	v.mu.Unlock()
	v.opts.onChange()

	go v.verify(ctx, candidate)
	return nil
}

func (v *Verification) verify(ctx context.Context, bookingNumber string) {
	defer v.inflight.Done()

	reply, err := v.asker.Ask(ctx, v.opts.initialQuery, bookingNumber)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		logger.L.Debug("discarding verification result of a closed flow", "booking_number", bookingNumber)
		return
	}
	if err != nil {
		logger.L.Warn("verification failed", "booking_number", bookingNumber, "error", err)
		v.errMsg = gateway.MessageOf(err, gateway.ConnectivityMessage)
		fire(v.fsm, TriggerRejected)
		v.mu.Unlock()
		v.opts.onChange()
		return
	}
	welcome := reply.Text
	if err := v.store.Save(ctx, bookingNumber, &welcome); err != nil {
		logger.L.Error("failed to save session", "booking_number", bookingNumber, "error", err)
		v.errMsg = SessionSaveFailureMessage
		fire(v.fsm, TriggerRejected)
		v.mu.Unlock()
		v.opts.onChange()
		return
	}
	fire(v.fsm, TriggerVerified)
	v.mu.Unlock()

	logger.L.Info("booking verified", "booking_number", bookingNumber)
	v.opts.onChange()
	v.nav.Navigate(ScreenConversation)
}

// State returns the current machine state.
func (v *Verification) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fsm.MustState().(State)
}

// InState reports whether the flow is in s or one of its substates.
func (v *Verification) InState(s State) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	ok, err := v.fsm.IsInState(s)
	return err == nil && ok
}

func (v *Verification) Snapshot() VerificationSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VerificationSnapshot{
		State:         v.fsm.MustState().(State),
		BookingNumber: v.candidate,
		Error:         v.errMsg,
	}
}

// Wait blocks until the call in flight, if any, has been applied or discarded.
func (v *Verification) Wait() {
	v.inflight.Wait()
}

// Close abandons the flow. A call still in flight is discarded when it
// resolves and nothing is written to the store.
func (v *Verification) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// Graph renders the state machine in DOT format.
func (v *Verification) Graph() string {
	return v.fsm.ToGraph()
}
