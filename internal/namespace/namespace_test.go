package namespace

import (
	"context"
	"errors"
	"testing"
)

func noop(ctx context.Context, conn Conn) error { return nil }

func TestBindings_Register(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		handler Handler
		wantErr error
	}{
		{name: "valid", key: "echo", handler: noop},
		{name: "clock", key: "clock", handler: noop},
		{name: "padded", key: "echo ", handler: noop, wantErr: ErrPaddedName},
		{name: "leading space", key: " clock", handler: noop, wantErr: ErrPaddedName},
		{name: "empty name", key: "   ", handler: noop, wantErr: ErrEmptyName},
		{name: "nil handler", key: "nil", handler: nil, wantErr: ErrNilHandler},
		{name: "duplicate", key: "echo", handler: noop, wantErr: ErrDuplicateName},
	}

	b := NewBindings()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Register(tt.key, tt.handler)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Register(%q) unexpected error: %v", tt.key, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register(%q) error = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}

	table := b.Table()
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
	if _, ok := table.Lookup("echo "); ok {
		t.Error("padded name must not be bound")
	}
	names := table.Names()
	if len(names) != 2 || names[0] != "clock" || names[1] != "echo" {
		t.Errorf("Names() = %v, want [clock echo]", names)
	}
}

func TestBindings_RegisterReturnsLookupKey(t *testing.T) {
	b := NewBindings()
	key := b.MustRegister("echo", noop)

	if _, ok := b.Table().Lookup(string(key)); !ok {
		t.Errorf("Lookup(%q) failed", key)
	}
}

func TestBindings_FrozenAfterTable(t *testing.T) {
	b := NewBindings()
	b.MustRegister("echo", noop)
	table := b.Table()

	if _, err := b.Register("late", noop); !errors.Is(err, ErrFrozen) {
		t.Errorf("Register after Table() error = %v, want ErrFrozen", err)
	}
	if _, ok := table.Lookup("late"); ok {
		t.Error("table must not see late registrations")
	}
	if _, ok := table.Lookup("unknown"); ok {
		t.Error("Lookup of unbound name should fail")
	}
}

func TestBindings_MustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegister with empty name should panic")
		}
	}()
	NewBindings().MustRegister("", noop)
}
