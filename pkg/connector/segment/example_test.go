// Copyright 2024-2026 Aiku AI

package segment_test

import (
	"encoding/json"
	"fmt"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

func ExampleList() {
	msg := segment.List(segment.Text("look: "), segment.Image(segment.ResolvedImage{Content: "aGk="}))
	data, _ := json.Marshal(msg)
	fmt.Println(string(data))
	// Output: {"type":"seglist","data":[{"type":"text","data":"look: "},{"type":"image","data":"aGk="}]}
}

func ExampleMapImages() {
	tree := segment.List(
		segment.Image(segment.UnresolvedImage{URL: "https://example.com/a.png"}),
		segment.Emoji(segment.UnresolvedImage{URL: "https://example.com/b.gif"}),
	)
	flat := segment.MapImages(tree, segment.Placeholder)
	fmt.Println(segment.PlainText(flat))
	// Output: 【图片】【动画表情】
}
