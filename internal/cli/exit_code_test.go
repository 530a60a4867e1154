package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain error", err: boom, want: exitFailure},
		{name: "usage", err: usageError(boom), want: exitUsage},
		{name: "wrapped usage", err: fmt.Errorf("deploy: %w", usageError(boom)), want: exitUsage},
		{name: "non-positive code", err: exitCodeError(0, boom), want: exitFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode() = %d, want %d", got, tc.want)
			}
		})
	}
	if exitCodeError(exitUsage, nil) != nil {
		t.Fatalf("exitCodeError(nil) should stay nil")
	}
	if !errors.Is(usageError(boom), boom) {
		t.Fatalf("usage error must unwrap to its cause")
	}
}
