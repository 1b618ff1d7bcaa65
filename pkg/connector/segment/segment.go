// Copyright 2024-2026 Aiku AI

// Package segment models the normalized message tree handed to MaiBot.
//
// A Segment is an immutable value: constructors copy their inputs and every
// pass returns a new tree, so a tree can be shared between goroutines and
// transformed without affecting earlier versions.
package segment

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Kind is the type tag of a segment.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindEmoji Kind = "emoji"
	KindList  Kind = "seglist"
)

// Placeholder texts used when images are not transferred.
const (
	ImagePlaceholder = "【图片】"
	EmojiPlaceholder = "【动画表情】"
)

// Payload is the content of an image or emoji segment: either an
// UnresolvedImage or a ResolvedImage.
type Payload interface {
	isPayload()
}

// UnresolvedImage references image bytes that have not been fetched yet.
type UnresolvedImage struct {
	URL string
}

// ResolvedImage holds base64-encoded image bytes.
type ResolvedImage struct {
	Content string
}

func (UnresolvedImage) isPayload() {}
func (ResolvedImage) isPayload()   {}

// Segment is one node of a message tree.
type Segment struct {
	kind     Kind
	text     string
	payload  Payload
	children []Segment
}

// Text returns a text leaf.
func Text(s string) Segment {
	return Segment{kind: KindText, text: s}
}

// Image returns an image leaf.
func Image(p Payload) Segment {
	return Segment{kind: KindImage, payload: p}
}

// Emoji returns an emoji (sticker) leaf.
func Emoji(p Payload) Segment {
	return Segment{kind: KindEmoji, payload: p}
}

// List returns a segment list containing a copy of children.
func List(children ...Segment) Segment {
	return Segment{kind: KindList, children: slices.Clone(children)}
}

func (s Segment) Kind() Kind {
	return s.kind
}

// Text returns the text of a text leaf, or "" for any other kind.
func (s Segment) Text() string {
	return s.text
}

// Payload returns the payload of an image or emoji leaf, or nil.
func (s Segment) Payload() Payload {
	return s.payload
}

// Children returns a copy of the children of a list.
func (s Segment) Children() []Segment {
	return slices.Clone(s.children)
}

// Len returns the number of direct children of a list.
func (s Segment) Len() int {
	return len(s.children)
}

// IsImage reports whether s is an image or emoji leaf.
func (s Segment) IsImage() bool {
	return s.kind == KindImage || s.kind == KindEmoji
}

// WithPayload returns a copy of an image or emoji leaf carrying p.
func (s Segment) WithPayload(p Payload) Segment {
	if !s.IsImage() {
		return s
	}
	s.payload = p
	return s
}

// Placeholder returns the text leaf that stands in for an image or emoji leaf.
// Other segments are returned unchanged.
func Placeholder(s Segment) Segment {
	switch s.kind {
	case KindImage:
		return Text(ImagePlaceholder)
	case KindEmoji:
		return Text(EmojiPlaceholder)
	default:
		return s
	}
}

// CountImages returns the number of image and emoji leaves in the tree.
func CountImages(s Segment) int {
	if s.IsImage() {
		return 1
	}
	n := 0
	for _, child := range s.children {
		n += CountImages(child)
	}
	return n
}

// MapImages returns a new tree in which every image and emoji leaf has been
// replaced by fn's result. Leaves are visited depth-first in document order.
func MapImages(s Segment, fn func(Segment) Segment) Segment {
	if s.IsImage() {
		return fn(s)
	}
	if s.kind != KindList {
		return s
	}
	out := make([]Segment, len(s.children))
	for i, child := range s.children {
		out[i] = MapImages(child, fn)
	}
	return Segment{kind: KindList, children: out}
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b Segment) bool {
	if a.kind != b.kind || a.text != b.text || a.payload != b.payload || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

type wireSegment struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

func (s Segment) wire() wireSegment {
	switch s.kind {
	case KindList:
		children := make([]wireSegment, len(s.children))
		for i, child := range s.children {
			children[i] = child.wire()
		}
		return wireSegment{Type: s.kind, Data: children}
	case KindImage, KindEmoji:
		switch p := s.payload.(type) {
		case ResolvedImage:
			return wireSegment{Type: s.kind, Data: p.Content}
		case UnresolvedImage:
			return wireSegment{Type: s.kind, Data: p.URL}
		default:
			return wireSegment{Type: s.kind, Data: ""}
		}
	default:
		return wireSegment{Type: s.kind, Data: s.text}
	}
}

// MarshalJSON encodes the tree in the maim_message Seg form
// {"type": ..., "data": ...}.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.kind == "" {
		return nil, fmt.Errorf("cannot marshal zero segment")
	}
	return json.Marshal(s.wire())
}

func (s Segment) String() string {
	switch s.kind {
	case KindList:
		return fmt.Sprintf("seglist(%d)", len(s.children))
	case KindImage, KindEmoji:
		switch s.payload.(type) {
		case ResolvedImage:
			return string(s.kind) + "(resolved)"
		default:
			return string(s.kind) + "(unresolved)"
		}
	default:
		return fmt.Sprintf("%s(%q)", s.kind, s.text)
	}
}
