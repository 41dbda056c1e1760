package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy text", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"locked text", fmt.Errorf("exec: %v", errors.New("database is locked")), true},
		{"constraint", errors.New("UNIQUE constraint failed: sessions.id"), false},
		{"other", errors.New("disk I/O error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSQLiteCodeUntyped(t *testing.T) {
	if code := SQLiteCode(errors.New("SQLITE_BUSY")); code != 0 {
		t.Errorf("SQLiteCode of a plain error = %d, want 0", code)
	}
}
