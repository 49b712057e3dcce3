// Package terminal is the line-oriented screen layer of the guest client.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/guest-assistant/internal/flow"
	"github.com/comigor/guest-assistant/internal/gateway"
	"github.com/comigor/guest-assistant/internal/logger"
	"github.com/comigor/guest-assistant/internal/session"
)

const (
	cmdNew  = "/new"
	cmdQuit = "/quit"
)

const resetFailureMessage = "Could not clear your session. Please start over again later."

// App renders the verification and conversation screens on a terminal.
type App struct {
	store session.Store
	asker gateway.Asker
	opts  []flow.Option

	in     *bufio.Scanner
	out    io.Writer
	router *flow.Router
}

func New(store session.Store, asker gateway.Asker, in io.Reader, out io.Writer, opts ...flow.Option) *App {
	return &App{
		store:  store,
		asker:  asker,
		opts:   opts,
		in:     bufio.NewScanner(in),
		out:    out,
		router: flow.NewRouter(flow.ScreenConversation),
	}
}

// Run shows screens until the guest quits or input ends. A stored session
// resumes straight into the conversation.
func (a *App) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			quit bool
			err  error
		)
		switch a.router.Current() {
		case flow.ScreenConversation:
			quit, err = a.conversation(ctx)
		default:
			quit, err = a.verification(ctx)
		}
		if err != nil || quit {
			return err
		}
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// readLine returns false on end of input.
func (a *App) readLine() (string, bool) {
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			logger.L.Warn("reading terminal input failed", "error", err)
		}
		return "", false
	}
	return a.in.Text(), true
}

func (a *App) verification(ctx context.Context) (bool, error) {
	v, err := flow.NewVerification(a.store, a.asker, a.router, a.opts...)
	if err != nil {
		return false, err
	}
	defer v.Close()

	a.printf("\nWelcome to Guest Assistant\n")
	a.printf("Please enter your booking number to continue\n")
	for {
		snap := v.Snapshot()
		if snap.BookingNumber != "" {
			a.printf("Booking number [%s]: ", snap.BookingNumber)
		} else {
			a.printf("Booking number: ")
		}
		line, ok := a.readLine()
		if !ok {
			return true, nil
		}
		if strings.TrimSpace(line) == cmdQuit {
			return true, nil
		}
		// A blank line keeps the number already entered.
		if t := strings.TrimSpace(line); t != "" {
			v.UpdateBookingNumber(t)
		}

		switch err := v.Submit(ctx); {
		case errors.Is(err, flow.ErrEmptyInput):
			a.printf("Please enter your booking number.\n")
			continue
		case err != nil:
			return false, err
		}
		a.printf("Verifying...\n")
		v.Wait()

		if _, moved := a.router.Take(); moved {
			return false, nil
		}
		if snap := v.Snapshot(); snap.State == flow.StateFailed {
			a.printf("! %s\n", snap.Error)
		}
	}
}

func (a *App) conversation(ctx context.Context) (bool, error) {
	c, err := flow.NewConversation(a.store, a.asker, a.router, a.opts...)
	if err != nil {
		return false, err
	}
	defer c.Close()

	if !c.Start(ctx) {
		a.router.Take()
		return false, nil
	}
	shown := a.render(c.Messages(), 0)
	a.printf("(type %s to start over, %s to exit)\n", cmdNew, cmdQuit)

	for {
		a.printf("> ")
		line, ok := a.readLine()
		if !ok {
			return true, nil
		}
		switch strings.TrimSpace(line) {
		case cmdQuit:
			return true, nil
		case cmdNew:
			if err := c.ResetSession(ctx); err != nil {
				// Logged by the flow.
				a.printf("! %s\n", resetFailureMessage)
			}
			a.router.Take()
			return false, nil
		}

		// The user's own line is already on screen.
		shown++
		switch err := c.SubmitMessage(ctx, line); {
		case errors.Is(err, flow.ErrEmptyInput):
			shown--
			a.printf("Please type a message.\n")
			continue
		case err != nil:
			return false, err
		}
		a.printf("Thinking...\n")
		c.Wait()
		shown = a.render(c.Messages(), shown)
	}
}

// render prints msgs[from:] and returns the new count of shown messages.
func (a *App) render(msgs []flow.Message, from int) int {
	for _, m := range msgs[min(from, len(msgs)):] {
		switch m.Role {
		case flow.RoleUser:
			a.printf("You: %s\n", m.Content)
		case flow.RoleError:
			a.printf("! %s\n", m.Content)
		default:
			a.printf("Assistant: %s\n", m.Content)
		}
	}
	return len(msgs)
}
