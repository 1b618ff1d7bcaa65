// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

// truncatePreview shortens s to at most n runes for logging.
func truncatePreview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// previewSegment renders a segment tree as a short plain-text log preview.
func previewSegment(seg segment.Segment) string {
	return truncatePreview(segment.PlainText(seg), 120)
}
