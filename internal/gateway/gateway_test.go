package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	ctype  string
	body   map[string]any
}

func newServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.method = r.Method
			got.path = r.URL.Path
			got.ctype = r.Header.Get("Content-Type")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Validates(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestAsk_Success(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, `{"status":"success","response":"Welcome back, Jane!"}`, &got)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	reply, err := c.Ask(context.Background(), "  Hello  ", "BK001")
	require.NoError(t, err)
	require.Equal(t, "Welcome back, Jane!", reply.Text)

	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/ask", got.path)
	require.Contains(t, got.ctype, "application/json")
	require.Equal(t, map[string]any{"booking_number": "BK001", "query": "Hello"}, got.body)
}

func TestAsk_DecodesBodyWhateverContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":"error","message":"Query cannot be empty"}`)
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "hi", "")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, KindRemote, gwErr.Kind)
	require.Equal(t, "Query cannot be empty", gwErr.Message)
}

func TestAsk_OmitsAbsentBookingNumber(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, `{"response":"ok"}`, &got)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "hi", "")
	require.NoError(t, err)
	require.NotContains(t, got.body, "booking_number")
}

func TestAsk_EmptyQueryNeverSent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { calls++ }))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), " \t\n", "BK001")
	require.ErrorIs(t, err, ErrEmptyQuery)
	require.Zero(t, calls)
}

func TestAsk_Failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{name: "remote message", status: http.StatusBadRequest, body: `{"status":"error","message":"Booking not found"}`, kind: KindRemote, message: "Booking not found"},
		{name: "remote without message", status: http.StatusInternalServerError, body: `{"status":"error"}`, kind: KindRemote},
		{name: "failure not json", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, kind: KindConnectivity},
		{name: "success not json", status: http.StatusOK, body: `oops`, kind: KindConnectivity},
		{name: "success without response", status: http.StatusOK, body: `{"status":"success"}`, kind: KindConnectivity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.status, tc.body, nil)
			c, err := New(srv.URL)
			require.NoError(t, err)

			_, err = c.Ask(context.Background(), "hi", "BK001")
			var gwErr *Error
			require.ErrorAs(t, err, &gwErr)
			require.Equal(t, tc.kind, gwErr.Kind)
			require.Equal(t, tc.status, gwErr.StatusCode)
			require.Equal(t, tc.message, gwErr.Message)
		})
	}
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), "hi", "BK001")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, KindConnectivity, gwErr.Kind)
	require.NotNil(t, errors.Unwrap(err))
}

func TestAsk_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), "hi", "BK001")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, KindConnectivity, gwErr.Kind)
}

func TestWithHTTPClient_KeepsBaseURL(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"response":"ok"}`, nil)
	c, err := New(srv.URL, WithHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)
	reply, err := c.Ask(context.Background(), "hi", "")
	require.NoError(t, err)
	require.Equal(t, "ok", reply.Text)
}

func TestMessageOf(t *testing.T) {
	const fallback = "Failed to send message. Please try again."
	require.Equal(t, "Booking not found", MessageOf(&Error{Kind: KindRemote, Message: "Booking not found"}, fallback))
	require.Equal(t, fallback, MessageOf(&Error{Kind: KindRemote}, fallback))
	require.Equal(t, fallback, MessageOf(&Error{Kind: KindConnectivity, Message: "ignored"}, fallback))
	require.Equal(t, fallback, MessageOf(errors.New("boom"), fallback))
}
