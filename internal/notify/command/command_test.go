package command

import (
	"context"
	"os/exec"
	"testing"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		program string
		extra   []string
		allowed bool
	}{
		{"notify-send", nil, true},
		{"/usr/bin/notify-send", nil, true},
		{"logger", nil, true},
		{"rm", nil, false},
		{"sh", nil, false},
		{"sh", []string{"sh"}, true},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			got := New(tt.program, nil, tt.extra...).IsAllowed()
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s) = %v, want %v", tt.program, got, tt.allowed)
			}
		})
	}
}

func TestSend_NotAllowed(t *testing.T) {
	c := New("rm", []string{"-rf", "{text}"})
	if err := c.Send(context.Background(), "alice", "/"); err == nil {
		t.Error("Expected error for disallowed program")
	}
}

func TestSend_Success(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	c := New("sh", []string{"-c", `test "$0" = alice && grep -q stretch`, "{owner}"}, "sh")
	if err := c.Send(context.Background(), "alice", "stretch"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestSend_NonZeroExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	c := New("sh", []string{"-c", "echo boom >&2; exit 3"}, "sh")
	err := c.Send(context.Background(), "alice", "stretch")
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if got := err.Error(); got != "sh exited with 3: boom" {
		t.Errorf("unexpected error: %s", got)
	}
}
