package main

import (
	"testing"

	"github.com/benedict2310/sitedrop/internal/cli"
)

func TestRunVersion(t *testing.T) {
	if err := run([]string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
}

func TestRunRenderMissingFlag(t *testing.T) {
	err := run([]string{"render"})
	if err == nil {
		t.Fatalf("expected render to fail without --from")
	}
	if code := cli.ExitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
