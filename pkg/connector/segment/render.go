// Copyright 2024-2026 Aiku AI

package segment

import "strings"

// PlainText renders the tree as text, substituting placeholders for images
// and emoji.
func PlainText(s Segment) string {
	var sb strings.Builder
	writePlain(&sb, s)
	return sb.String()
}

func writePlain(sb *strings.Builder, s Segment) {
	switch s.kind {
	case KindText:
		sb.WriteString(s.text)
	case KindImage:
		sb.WriteString(ImagePlaceholder)
	case KindEmoji:
		sb.WriteString(EmojiPlaceholder)
	case KindList:
		for _, child := range s.children {
			writePlain(sb, child)
		}
	}
}
