// Copyright 2024-2026 Aiku AI

package segment

import (
	"encoding/json"
	"testing"
)

func TestListCopiesChildren(t *testing.T) {
	t.Parallel()
	children := []Segment{Text("a"), Text("b")}
	list := List(children...)
	children[0] = Text("changed")

	if got := list.Children()[0].Text(); got != "a" {
		t.Errorf("first child: got %q, want %q", got, "a")
	}

	got := list.Children()
	got[1] = Text("mutated")
	if list.Children()[1].Text() != "b" {
		t.Error("Children should return a copy")
	}
}

func TestCountImages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		seg  Segment
		want int
	}{
		{"text", Text("hi"), 0},
		{"image", Image(UnresolvedImage{URL: "u"}), 1},
		{"emoji", Emoji(ResolvedImage{Content: "c"}), 1},
		{"empty list", List(), 0},
		{
			"nested",
			List(
				Text("a"),
				List(Image(UnresolvedImage{URL: "1"}), Text("b")),
				List(List(Emoji(UnresolvedImage{URL: "2"}), Image(UnresolvedImage{URL: "3"}))),
			),
			3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CountImages(tt.seg); got != tt.want {
				t.Errorf("CountImages: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMapImagesReturnsNewTree(t *testing.T) {
	t.Parallel()
	orig := List(
		Text("head"),
		List(Image(UnresolvedImage{URL: "one"}), Emoji(UnresolvedImage{URL: "two"})),
	)
	var visited []string
	mapped := MapImages(orig, func(s Segment) Segment {
		url := s.Payload().(UnresolvedImage).URL
		visited = append(visited, url)
		return s.WithPayload(ResolvedImage{Content: "b64-" + url})
	})

	if len(visited) != 2 || visited[0] != "one" || visited[1] != "two" {
		t.Errorf("visit order: got %v, want [one two]", visited)
	}
	inner := mapped.Children()[1].Children()
	if inner[0].Kind() != KindImage || inner[1].Kind() != KindEmoji {
		t.Errorf("kinds not preserved: got %s, %s", inner[0].Kind(), inner[1].Kind())
	}
	if p, ok := inner[1].Payload().(ResolvedImage); !ok || p.Content != "b64-two" {
		t.Errorf("emoji payload: got %#v", inner[1].Payload())
	}
	if _, ok := orig.Children()[1].Children()[0].Payload().(UnresolvedImage); !ok {
		t.Error("original tree was modified")
	}
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()
	if got := Placeholder(Image(UnresolvedImage{})).Text(); got != ImagePlaceholder {
		t.Errorf("image placeholder: got %q", got)
	}
	if got := Placeholder(Emoji(UnresolvedImage{})).Text(); got != EmojiPlaceholder {
		t.Errorf("emoji placeholder: got %q", got)
	}
	txt := Text("keep")
	if !Equal(Placeholder(txt), txt) {
		t.Error("text should pass through unchanged")
	}
}

func TestWithPayloadIgnoresNonImage(t *testing.T) {
	t.Parallel()
	txt := Text("x")
	if got := txt.WithPayload(ResolvedImage{Content: "c"}); got.Payload() != nil {
		t.Errorf("text gained payload %#v", got.Payload())
	}
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()
	tree := List(
		Text("hello"),
		Image(ResolvedImage{Content: "aGk="}),
		Emoji(UnresolvedImage{URL: "https://example.com/e.gif"}),
		List(Text("nested")),
	)
	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"seglist","data":[{"type":"text","data":"hello"},{"type":"image","data":"aGk="},{"type":"emoji","data":"https://example.com/e.gif"},{"type":"seglist","data":[{"type":"text","data":"nested"}]}]}`
	if string(data) != want {
		t.Errorf("JSON:\n got %s\nwant %s", data, want)
	}
}

func TestMarshalZeroSegment(t *testing.T) {
	t.Parallel()
	if _, err := json.Marshal(Segment{}); err == nil {
		t.Error("expected error for zero segment")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()
	a := List(Text("x"), Image(UnresolvedImage{URL: "u"}))
	b := List(Text("x"), Image(UnresolvedImage{URL: "u"}))
	c := List(Text("x"), Emoji(UnresolvedImage{URL: "u"}))
	if !Equal(a, b) {
		t.Error("identical trees should be equal")
	}
	if Equal(a, c) {
		t.Error("image vs emoji should differ")
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	tree := List(
		Text("【alice】:"),
		Image(UnresolvedImage{URL: "u"}),
		Text("\n"),
		List(Emoji(ResolvedImage{Content: "c"})),
	)
	want := "【alice】:【图片】\n【动画表情】"
	if got := PlainText(tree); got != want {
		t.Errorf("PlainText: got %q, want %q", got, want)
	}
}
