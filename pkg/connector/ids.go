// Copyright 2024-2026 Aiku AI

package connector

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MakeEchoID creates a unique echo value for an API call. The action name is
// kept as a prefix so responses are readable in logs.
func MakeEchoID(action string) string {
	return action + ":" + uuid.NewString()
}

// ParseEchoAction extracts the action name from an echo created by MakeEchoID.
func ParseEchoAction(echo string) string {
	action, _, found := strings.Cut(echo, ":")
	if !found {
		return ""
	}
	return action
}

// FormatID renders a OneBot numeric id as a string.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID parses a OneBot numeric id from a string, returning 0 when invalid.
func ParseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// isSelfMention reports whether an at-mention target is the bot itself.
func isSelfMention(qq string, selfID int64) bool {
	return selfID != 0 && qq == FormatID(selfID)
}
