// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"
	"testing"
)

func TestMakeEchoID(t *testing.T) {
	t.Parallel()
	a := MakeEchoID("get_group_info")
	b := MakeEchoID("get_group_info")
	if a == b {
		t.Errorf("echo ids should be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "get_group_info:") {
		t.Errorf("MakeEchoID: got %q", a)
	}
}

func TestParseEchoAction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		echo string
		want string
	}{
		{MakeEchoID("get_forward_msg"), "get_forward_msg"},
		{"get_login_info:abc", "get_login_info"},
		{"no-separator", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseEchoAction(tt.echo); got != tt.want {
			t.Errorf("ParseEchoAction(%q): got %q, want %q", tt.echo, got, tt.want)
		}
	}
}

func TestFormatID(t *testing.T) {
	t.Parallel()
	if got := FormatID(1234567890); got != "1234567890" {
		t.Errorf("FormatID: got %q", got)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int64
	}{
		{"10001", 10001},
		{" 42 ", 42},
		{"", 0},
		{"all", 0},
		{"12abc", 0},
	}
	for _, tt := range tests {
		if got := ParseID(tt.in); got != tt.want {
			t.Errorf("ParseID(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	t.Parallel()
	const original int64 = 3141592653
	if got := ParseID(FormatID(original)); got != original {
		t.Errorf("ID round trip: got %d, want %d", got, original)
	}
}

func TestIsSelfMention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		qq     string
		selfID int64
		want   bool
	}{
		{"10001", 10001, true},
		{"10002", 10001, false},
		{"all", 10001, false},
		{"0", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		if got := isSelfMention(tt.qq, tt.selfID); got != tt.want {
			t.Errorf("isSelfMention(%q, %d): got %v, want %v", tt.qq, tt.selfID, got, tt.want)
		}
	}
}
