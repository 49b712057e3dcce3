// Package gateway is the guest client's only channel to the remote
// assistant: one POST /ask per call, no state kept between calls.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/comigor/guest-assistant/internal/logger"
)

// ConnectivityMessage is shown when the assistant could not be reached or
// its answer could not be read.
const ConnectivityMessage = "Failed to connect to the server. Please try again."

// ErrEmptyQuery is returned for blank queries; nothing is sent.
var ErrEmptyQuery = errors.New("gateway: query must not be empty")

// Reply is a successful assistant answer. Text is rendered verbatim.
type Reply struct {
	Text string
}

type Kind string

const (
	// KindRemote means the assistant answered with a non-success status.
	KindRemote Kind = "remote"
	// KindConnectivity means there was no usable answer at all.
	KindConnectivity Kind = "connectivity"
)

// Error is the failure result of Ask.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("gateway: %s failure (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s failure (status %d): %v", e.Kind, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Asker is the capability the flows depend on.
type Asker interface {
	Ask(ctx context.Context, query, bookingNumber string) (Reply, error)
}

type askRequest struct {
	BookingNumber string `json:"booking_number,omitempty"`
	Query         string `json:"query"`
}

type askSuccess struct {
	Response *string `json:"response"`
}

type askFailure struct {
	Message string `json:"message"`
}

// Client implements Asker over HTTP.
type Client struct {
	http *resty.Client
}

type Option func(*Client)

// WithTimeout bounds a whole call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url must not be empty")
	}
	c := &Client{http: resty.New().SetBaseURL(baseURL)}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetLogger(restyLogger{})
	c.http.SetHeader("Content-Type", "application/json")
	c.http.SetHeader("Accept", "application/json")
	return c, nil
}

// Ask sends query on behalf of bookingNumber (omitted when empty). It returns
// exactly one of a Reply or an *Error; the call is never retried.
func (c *Client) Ask(ctx context.Context, query, bookingNumber string) (Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}

	// Bodies are decoded as JSON whatever content type the server claims, so
	// an unreadable body surfaces as an error from Post.
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(askRequest{BookingNumber: bookingNumber, Query: query}).
		SetResult(&askSuccess{}).
		SetError(&askFailure{}).
		ForceContentType("application/json").
		Post("/ask")
	if err != nil {
		if resp != nil && resp.RawResponse != nil {
			logger.L.Warn("assistant answer unreadable", "status", resp.StatusCode(), "error", err)
			return Reply{}, &Error{Kind: KindConnectivity, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode answer: %w", err)}
		}
		logger.L.Warn("assistant unreachable", "error", err)
		return Reply{}, &Error{Kind: KindConnectivity, Err: err}
	}

	status := resp.StatusCode()
	logger.L.Debug("assistant answered", "status", status, "bytes", len(resp.Body()))

	if resp.IsSuccess() {
		ok := resp.Result().(*askSuccess)
		if ok.Response == nil {
			return Reply{}, &Error{Kind: KindConnectivity, StatusCode: status, Err: errors.New("reply has no response field")}
		}
		return Reply{Text: *ok.Response}, nil
	}

	// resty only logs a failure body it cannot decode.
	if !json.Valid(resp.Body()) {
		return Reply{}, &Error{Kind: KindConnectivity, StatusCode: status, Err: fmt.Errorf("undecodable failure body (status %d)", status)}
	}
	var msg string
	if fail, isFailure := resp.Error().(*askFailure); isFailure {
		msg = fail.Message
	}
	logger.L.Warn("assistant rejected query", "status", status)
	return Reply{}, &Error{Kind: KindRemote, StatusCode: status, Message: msg}
}

// MessageOf returns the user-facing text of err: the assistant's message for
// remote failures that carry one, fallback otherwise.
func MessageOf(err error, fallback string) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Kind == KindRemote && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}

// restyLogger sends resty's own diagnostics to the process logger instead of
// stderr, which the terminal client shares with the guest.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) { logger.L.Error(fmt.Sprintf(format, v...)) }
func (restyLogger) Warnf(format string, v ...any)  { logger.L.Warn(fmt.Sprintf(format, v...)) }
func (restyLogger) Debugf(format string, v ...any) { logger.L.Debug(fmt.Sprintf(format, v...)) }
