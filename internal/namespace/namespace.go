package namespace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Errors
var (
	ErrEmptyName     = errors.New("namespace name is empty")
	ErrPaddedName    = errors.New("namespace name has surrounding whitespace")
	ErrNilHandler    = errors.New("namespace handler is nil")
	ErrDuplicateName = errors.New("namespace already registered")
	ErrFrozen        = errors.New("bindings frozen")
)

// Name identifies a registered namespace. It is the lookup key of a Table.
type Name string

// Conn is what a handler sees of its namespace worker.
type Conn interface {
	// Receive blocks until the next inbound value for this namespace arrives.
	// It only returns an error when the worker is being cancelled.
	Receive(ctx context.Context) (json.RawMessage, error)

	// Send queues v for delivery to the client. It does not wait for the write.
	Send(v any) error

	Namespace() Name
	SessionID() string
	Logger() *slog.Logger
}

// Handler is the business logic of one namespace. It runs on its own
// goroutine; returning (with or without an error) finishes the worker.
type Handler func(ctx context.Context, conn Conn) error

// Bindings collects namespace registrations before any session starts.
type Bindings struct {
	mu       sync.Mutex
	handlers map[Name]Handler
	frozen   bool
}

// NewBindings creates an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{handlers: make(map[Name]Handler)}
}

// Register binds name to h. Lookups match name exactly, so surrounding
// whitespace is rejected rather than stripped.
func (b *Bindings) Register(name string, h Handler) (Name, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	if strings.TrimSpace(name) != name {
		return "", fmt.Errorf("register %q: %w", name, ErrPaddedName)
	}
	if h == nil {
		return "", fmt.Errorf("register %q: %w", name, ErrNilHandler)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return "", fmt.Errorf("register %q: %w", name, ErrFrozen)
	}
	key := Name(name)
	if _, exists := b.handlers[key]; exists {
		return "", fmt.Errorf("register %q: %w", name, ErrDuplicateName)
	}
	b.handlers[key] = h
	return key, nil
}

// MustRegister is Register for package init and main wiring.
func (b *Bindings) MustRegister(name string, h Handler) Name {
	key, err := b.Register(name, h)
	if err != nil {
		panic(err)
	}
	return key
}

// Table freezes the bindings and returns an immutable snapshot.
func (b *Bindings) Table() Table {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
	handlers := make(map[Name]Handler, len(b.handlers))
	for k, v := range b.handlers {
		handlers[k] = v
	}
	return Table{handlers: handlers}
}

// Table is a read-only namespace -> handler mapping shared by all sessions.
type Table struct {
	handlers map[Name]Handler
}

// Lookup returns the handler bound to name.
func (t Table) Lookup(name string) (Handler, bool) {
	h, ok := t.handlers[Name(name)]
	return h, ok
}

// Len returns the number of bound namespaces.
func (t Table) Len() int {
	return len(t.handlers)
}

// Names returns the bound namespaces in sorted order.
func (t Table) Names() []Name {
	out := make([]Name, 0, len(t.handlers))
	for k := range t.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
