package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "busy text", err: errors.New("exec: SQLITE_BUSY"), want: true},
		{name: "locked text", err: errors.New("database is locked (5)"), want: true},
		{name: "wrapped", err: fmt.Errorf("upsert session: %w", errors.New("database is locked")), want: true},
		{name: "other", err: errors.New("no such table"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Fatalf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
