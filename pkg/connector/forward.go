// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"strings"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

const (
	// forwardMaxDepth is the nesting depth at which nested bundles collapse
	// into a placeholder line.
	forwardMaxDepth         = 3
	forwardNicknameFallback = "QQ用户"
	forwardIndent           = "--"
)

// flattenForward converts the nodes of a forward bundle into a segment tree
// and counts the image and emoji leaves in it. Images are left unresolved.
// It returns false when the bundle produced no segments.
//
// Only the first content item of each node is considered.
func flattenForward(nodes []onebot.ForwardNode, depth int) (segment.Segment, int, bool) {
	if len(nodes) == 0 {
		return segment.Segment{}, 0, false
	}
	indent := strings.Repeat(forwardIndent, depth)
	var out []segment.Segment
	images := 0
	for _, node := range nodes {
		if len(node.Message) == 0 {
			continue
		}
		nick := node.Nickname(forwardNicknameFallback)
		header := indent + "【" + nick + "】:"
		item := node.Message[0]

		switch item.Type {
		case onebot.ItemForward:
			if depth >= forwardMaxDepth {
				out = append(out, segment.Text(header+"【转发消息】\n"))
				continue
			}
			var data onebot.ForwardData
			if item.DecodeData(&data) != nil {
				continue
			}
			title := segment.Text(indent + "【" + nick + "】: 合并转发消息内容：\n")
			sub, n, ok := flattenForward(data.Content, depth+1)
			if !ok {
				out = append(out, segment.List(title))
				continue
			}
			images += n
			out = append(out, segment.List(title, sub))
		case onebot.ItemText:
			var data onebot.TextData
			if item.DecodeData(&data) != nil {
				continue
			}
			out = append(out, segment.List(segment.Text(header), segment.Text(data.Text), segment.Text("\n")))
		case onebot.ItemImage:
			var data onebot.ImageData
			if item.DecodeData(&data) != nil {
				continue
			}
			images++
			out = append(out, segment.List(segment.Text(header), imageLeaf(data, segment.UnresolvedImage{URL: data.URL}), segment.Text("\n")))
		}
	}
	if len(out) == 0 {
		return segment.Segment{}, 0, false
	}
	return segment.List(out...), images, true
}

func imageLeaf(data onebot.ImageData, payload segment.Payload) segment.Segment {
	if data.IsSticker() {
		return segment.Emoji(payload)
	}
	return segment.Image(payload)
}

// applyImagePolicy fetches the images of a flattened bundle when there are
// fewer than maxForwardImages of them. Larger bundles get placeholders.
func (mc *messageConverter) applyImagePolicy(ctx context.Context, tree segment.Segment, count int) segment.Segment {
	switch {
	case count == 0:
		mc.metrics.ForwardPolicy.WithLabelValues(policyNone).Inc()
		return tree
	case count < mc.maxForwardImages:
		mc.metrics.ForwardPolicy.WithLabelValues(policyResolve).Inc()
		return mc.resolveImages(ctx, tree)
	default:
		mc.metrics.ForwardPolicy.WithLabelValues(policyPlaceholder).Inc()
		return placeholderImages(tree)
	}
}

// resolveImages returns a copy of tree with every unresolved image fetched.
// A leaf whose fetch yields nothing becomes its placeholder text.
func (mc *messageConverter) resolveImages(ctx context.Context, tree segment.Segment) segment.Segment {
	return segment.MapImages(tree, func(leaf segment.Segment) segment.Segment {
		p, ok := leaf.Payload().(segment.UnresolvedImage)
		if !ok {
			return leaf
		}
		content, err := mc.images.FetchImage(ctx, p.URL)
		if err != nil || content == "" {
			mc.log.Warn().Err(err).Str("url", p.URL).Msg("Failed to fetch forwarded image, using placeholder")
			mc.metrics.DroppedSegments.WithLabelValues(dropImageFetch).Inc()
			return segment.Placeholder(leaf)
		}
		return leaf.WithPayload(segment.ResolvedImage{Content: content})
	})
}

// placeholderImages returns a copy of tree with every image and emoji leaf
// replaced by placeholder text.
func placeholderImages(tree segment.Segment) segment.Segment {
	return segment.MapImages(tree, segment.Placeholder)
}
