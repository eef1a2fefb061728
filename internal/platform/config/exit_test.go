package config

import (
	"bytes"
	"errors"
	"testing"
)

// captureExit swaps the exit hooks for the duration of the test.
func captureExit(t *testing.T) (*bytes.Buffer, *int) {
	t.Helper()
	var out bytes.Buffer
	code := -1
	prevWriter, prevExit := exitWriter, exitFunc
	exitWriter = &out
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitWriter, exitFunc = prevWriter, prevExit })
	return &out, &code
}

func TestExitf(t *testing.T) {
	out, code := captureExit(t)
	Exitf("fatal: %s", "db locked")
	if *code != 1 {
		t.Fatalf("exit code = %d", *code)
	}
	if out.String() != "fatal: db locked\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestExitOnError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{name: "nil", err: nil, wantCode: -1},
		{name: "error", err: errors.New("bad port"), wantCode: 1, wantOut: "parse flags: bad port\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := captureExit(t)
			ExitOnError(tt.err, "parse flags")
			if *code != tt.wantCode || out.String() != tt.wantOut {
				t.Fatalf("code=%d out=%q, want code=%d out=%q", *code, out.String(), tt.wantCode, tt.wantOut)
			}
		})
	}
}
