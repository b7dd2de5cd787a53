package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/nsmux/internal/namespace"
)

// Namespace names
const (
	EchoNamespace      = "echo"
	CountdownNamespace = "countdown"
)

// MaxCountdown bounds the value a countdown accepts.
const MaxCountdown = 10000

var ErrInvalidCountdown = errors.New("countdown value must be an integer between 0 and 10000")

// Register binds every example namespace.
func Register(b *namespace.Bindings) error {
	if _, err := b.Register(EchoNamespace, Echo); err != nil {
		return fmt.Errorf("register %s: %w", EchoNamespace, err)
	}
	if _, err := b.Register(CountdownNamespace, Countdown); err != nil {
		return fmt.Errorf("register %s: %w", CountdownNamespace, err)
	}
	return nil
}

// Echo sends every received value back unchanged. A null value ends the worker.
func Echo(ctx context.Context, conn namespace.Conn) error {
	for {
		v, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if isNull(v) {
			return nil
		}
		if err := conn.Send(v); err != nil {
			return err
		}
	}
}

// Countdown takes one integer n and sends n, n-1, ..., 0, then returns.
// The next value starts a fresh worker.
func Countdown(ctx context.Context, conn namespace.Conn) error {
	v, err := conn.Receive(ctx)
	if err != nil {
		return err
	}

	var n int
	if err := json.Unmarshal(v, &n); err != nil || n < 0 || n > MaxCountdown {
		return fmt.Errorf("%w: got %s", ErrInvalidCountdown, v)
	}

	for i := n; i >= 0; i-- {
		if err := conn.Send(i); err != nil {
			return err
		}
	}

	conn.Logger().Debug("countdown finished", "from", n)
	return nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}
