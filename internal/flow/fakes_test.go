package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/comigor/guest-assistant/internal/gateway"
	"github.com/comigor/guest-assistant/internal/session"
)

type askCall struct {
	query   string
	booking string
}

// fakeAsker records calls. When gate is set, Ask blocks until it is closed,
// so tests can observe the in-flight state.
type fakeAsker struct {
	mu      sync.Mutex
	calls   []askCall
	respond func(query, booking string) (gateway.Reply, error)
	gate    chan struct{}
	started chan askCall
}

func replyWith(text string) *fakeAsker {
	return &fakeAsker{respond: func(string, string) (gateway.Reply, error) {
		return gateway.Reply{Text: text}, nil
	}}
}

func failWith(err error) *fakeAsker {
	return &fakeAsker{respond: func(string, string) (gateway.Reply, error) {
		return gateway.Reply{}, err
	}}
}

// gated makes Ask block until release is called.
func (f *fakeAsker) gated() *fakeAsker {
	f.gate = make(chan struct{})
	f.started = make(chan askCall, 8)
	return f
}

func (f *fakeAsker) release() { close(f.gate) }

func (f *fakeAsker) Ask(_ context.Context, query, booking string) (gateway.Reply, error) {
	call := askCall{query: query, booking: booking}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- call
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.respond(query, booking)
}

func (f *fakeAsker) Calls() []askCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]askCall(nil), f.calls...)
}

// failingStore fails every operation.
type failingStore struct{}

var errStore = errors.New("store unavailable")

func (failingStore) Save(context.Context, string, *string) error { return errStore }
func (failingStore) BookingNumber(context.Context) (string, bool, error) {
	return "", false, errStore
}
func (failingStore) Welcome(context.Context) (string, bool, error) { return "", false, errStore }
func (failingStore) Clear(context.Context) error                   { return errStore }

var _ session.Store = failingStore{}

func remoteError(msg string) error {
	return &gateway.Error{Kind: gateway.KindRemote, StatusCode: 400, Message: msg}
}

func connectivityError() error {
	return &gateway.Error{Kind: gateway.KindConnectivity, Err: errors.New("dial tcp: connection refused")}
}

func seededStore(booking, welcome string) *session.MemoryStore {
	s := session.NewMemoryStore()
	_ = s.Save(context.Background(), booking, &welcome)
	return s
}
