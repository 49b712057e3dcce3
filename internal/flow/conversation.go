package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/guest-assistant/internal/gateway"
	"github.com/comigor/guest-assistant/internal/logger"
	"github.com/comigor/guest-assistant/internal/session"
)

// Conversation states.
const (
	StateIdle    State = "Idle"
	StateSending State = "Sending"
)

const (
	TriggerSend    Trigger = "Send"
	TriggerReplied Trigger = "Replied"
	TriggerFailed  Trigger = "Failed"
)

const (
	// FallbackGreeting seeds the log when no welcome was stored.
	FallbackGreeting = "Hello! How can I assist you today?"
	// SendFailureMessage is appended when a send fails without a message
	// from the assistant.
	SendFailureMessage = "Failed to send message. Please try again."
)

// ConversationSnapshot is a copy of the observable conversation state.
type ConversationSnapshot struct {
	State         State
	BookingNumber string
	Messages      []Message
	Input         string
}

// Conversation owns the message log of one verified session.
type Conversation struct {
	store session.Store
	asker gateway.Asker
	nav   Navigator
	opts  options

	mu       sync.Mutex
	fsm      *stateless.StateMachine
	booking  string
	messages []Message
	input    string
	active   bool
	// gen changes on every Start, reset and close; a reply is applied only
	// under the generation it was sent in.
	gen      uint64
	inflight sync.WaitGroup
}

func NewConversation(store session.Store, asker gateway.Asker, nav Navigator, opts ...Option) (*Conversation, error) {
	if store == nil {
		return nil, errors.New("flow: session store must not be nil")
	}
	if asker == nil {
		return nil, errors.New("flow: asker must not be nil")
	}
	if nav == nil {
		return nil, errors.New("flow: navigator must not be nil")
	}

	return &Conversation{store: store, asker: asker, nav: nav, opts: buildOptions(opts), fsm: newConversationMachine()}, nil
}

func newConversationMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateIdle)
	sm.Configure(StateIdle).
		Permit(TriggerSend, StateSending)
	sm.Configure(StateSending).
		Permit(TriggerReplied, StateIdle).
		Permit(TriggerFailed, StateIdle)
	logTransitions("conversation", sm)
	return sm
}

// Start enters the conversation screen. Without a stored booking number the
// navigator is sent back to verification and Start returns false; the
// conversation never becomes active. Otherwise the log is seeded with one
// assistant message: the stored welcome, or the fallback greeting. Starting
// again after a reset begins a fresh log; replies of the earlier session are
// discarded.
func (c *Conversation) Start(ctx context.Context) bool {
	booking, ok, err := c.store.BookingNumber(ctx)
	if err != nil {
		logger.L.Warn("failed to read booking number; redirecting to verification", "error", err)
	}
	if err != nil || !ok || booking == "" {
		c.nav.Navigate(ScreenVerification)
		return false
	}

	greeting := c.opts.fallbackGreeting
	welcome, ok, err := c.store.Welcome(ctx)
	if err != nil {
		logger.L.Warn("failed to read welcome; using fallback greeting", "error", err)
	}
	if err == nil && ok && strings.TrimSpace(welcome) != "" {
		greeting = welcome
	}

	c.mu.Lock()
	c.gen++
	c.fsm = newConversationMachine()
	c.booking = booking
	c.messages = []Message{{Role: RoleAssistant, Content: greeting}}
	c.input = ""
	c.active = true
	c.mu.Unlock()

	logger.L.Info("conversation started", "booking_number", booking)
	c.opts.onChange()
	return true
}

// SetInput replaces the input buffer.
func (c *Conversation) SetInput(raw string) {
	c.mu.Lock()
	c.input = raw
	c.mu.Unlock()
	c.opts.onChange()
}

// SubmitMessage appends text as a user message, clears the input buffer and
// asks the assistant, returning before the answer arrives. The answer, or
// the failure, is appended when it resolves. The user message is never
// retracted.
func (c *Conversation) SubmitMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrInactive
	}
	if !canFire(c.fsm, TriggerSend) {
		c.mu.Unlock()
		return ErrBusy
	}
	if trimmed == "" {
		c.mu.Unlock()
		return ErrEmptyInput
	}
	c.messages = append(c.messages, Message{Role: RoleUser, Content: trimmed})
	c.input = ""
	fire(c.fsm, TriggerSend)
	booking, gen := c.booking, c.gen
	c.inflight.Add(1)
	c.mu.Unlock()
	c.opts.onChange()

	go c.exchange(ctx, trimmed, booking, gen)
	return nil
}

func (c *Conversation) exchange(ctx context.Context, text, booking string, gen uint64) {
	defer c.inflight.Done()

	reply, err := c.asker.Ask(ctx, text, booking)

	c.mu.Lock()
	if !c.active || gen != c.gen {
		c.mu.Unlock()
		logger.L.Debug("discarding stale reply", "booking_number", booking)
		return
	}
	if err != nil {
		logger.L.Warn("send failed", "booking_number", booking, "error", err)
		c.messages = append(c.messages, Message{Role: RoleError, Content: gateway.MessageOf(err, SendFailureMessage)})
		fire(c.fsm, TriggerFailed)
	} else {
		c.messages = append(c.messages, Message{Role: RoleAssistant, Content: reply.Text})
		fire(c.fsm, TriggerReplied)
	}
	c.mu.Unlock()
	c.opts.onChange()
}

// ResetSession clears the session store, discards the log and sends the
// navigator back to verification. A reply still in flight is discarded.
func (c *Conversation) ResetSession(ctx context.Context) error {
	c.mu.Lock()
	c.active = false
	c.gen++
	c.messages = nil
	c.input = ""
	c.mu.Unlock()

	err := c.store.Clear(ctx)
	if err != nil {
		logger.L.Error("failed to clear session", "error", err)
		err = fmt.Errorf("flow: reset session: %w", err)
	}
	c.opts.onChange()
	c.nav.Navigate(ScreenVerification)
	return err
}

// State returns the current machine state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.MustState().(State)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) Snapshot() ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConversationSnapshot{
		State:         c.fsm.MustState().(State),
		BookingNumber: c.booking,
		Messages:      append([]Message(nil), c.messages...),
		Input:         c.input,
	}
}

// Active reports whether the conversation started and was not reset or closed.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Wait blocks until the call in flight, if any, has been applied or discarded.
func (c *Conversation) Wait() {
	c.inflight.Wait()
}

// Close abandons the conversation without touching the store.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.active = false
	c.gen++
	c.mu.Unlock()
}

// Graph renders the state machine in DOT format.
func (c *Conversation) Graph() string {
	return c.fsm.ToGraph()
}
