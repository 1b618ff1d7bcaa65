// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

// OneBotAPI is the set of gateway actions the message pipeline depends on.
// NapcatClient implements it over its connection; tests inject fakes.
type OneBotAPI interface {
	GetGroupInfo(ctx context.Context, groupID int64) (*onebot.GroupInfo, error)
	GetMemberInfo(ctx context.Context, groupID, userID int64) (*onebot.MemberInfo, error)
	GetSelfInfo(ctx context.Context) (*onebot.LoginInfo, error)
	GetForwardMessage(ctx context.Context, messageID string) ([]onebot.ForwardNode, error)
}

// ImageFetcher downloads an image and returns it base64-encoded. An empty
// result means nothing could be fetched.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (string, error)
}

// messageConverter turns the content items of one message into segments.
type messageConverter struct {
	api              OneBotAPI
	images           ImageFetcher
	metrics          *Metrics
	maxForwardImages int
	log              zerolog.Logger
}

// messageScope carries the per-message identifiers mention lookups need.
type messageScope struct {
	selfID  int64
	groupID int64
}

// convertItems converts every item in order, dropping the ones that yield
// nothing.
func (mc *messageConverter) convertItems(ctx context.Context, items onebot.Items, scope messageScope) []segment.Segment {
	segs := make([]segment.Segment, 0, len(items))
	for _, item := range items {
		if seg, ok := mc.convertItem(ctx, item, scope); ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

func (mc *messageConverter) convertItem(ctx context.Context, item onebot.Item, scope messageScope) (segment.Segment, bool) {
	switch item.Type {
	case onebot.ItemText:
		var data onebot.TextData
		if err := item.DecodeData(&data); err != nil {
			return mc.dropDecode(item, err)
		}
		return segment.Text(data.Text), true
	case onebot.ItemImage:
		return mc.convertImage(ctx, item)
	case onebot.ItemAt:
		return mc.convertMention(ctx, item, scope)
	case onebot.ItemForward:
		return mc.convertForward(ctx, item)
	case onebot.ItemFace, onebot.ItemRecord, onebot.ItemVideo, onebot.ItemRPS, onebot.ItemDice,
		onebot.ItemShake, onebot.ItemPoke, onebot.ItemShare, onebot.ItemReply, onebot.ItemNode:
		mc.log.Debug().Str("item_type", item.Type).Msg("Skipping unsupported content item")
	default:
		mc.log.Debug().Str("item_type", item.Type).Msg("Skipping unknown content item")
	}
	return segment.Segment{}, false
}

func (mc *messageConverter) dropDecode(item onebot.Item, err error) (segment.Segment, bool) {
	mc.log.Warn().Err(err).Str("item_type", item.Type).Msg("Dropping malformed content item")
	mc.metrics.DroppedSegments.WithLabelValues(dropDecode).Inc()
	return segment.Segment{}, false
}

func (mc *messageConverter) convertImage(ctx context.Context, item onebot.Item) (segment.Segment, bool) {
	var data onebot.ImageData
	if err := item.DecodeData(&data); err != nil {
		return mc.dropDecode(item, err)
	}
	content, err := mc.images.FetchImage(ctx, data.URL)
	if err != nil || content == "" {
		mc.log.Warn().Err(err).Str("url", data.URL).Msg("Failed to fetch image, dropping segment")
		mc.metrics.DroppedSegments.WithLabelValues(dropImageFetch).Inc()
		return segment.Segment{}, false
	}
	return imageLeaf(data, segment.ResolvedImage{Content: content}), true
}

// convertMention renders an at-mention as "@nickname", using the bot's own
// login info when the bot itself is mentioned.
func (mc *messageConverter) convertMention(ctx context.Context, item onebot.Item, scope messageScope) (segment.Segment, bool) {
	var data onebot.AtData
	if err := item.DecodeData(&data); err != nil {
		return mc.dropDecode(item, err)
	}
	qq := string(data.QQ)
	if isSelfMention(qq, scope.selfID) {
		info, err := mc.api.GetSelfInfo(ctx)
		if err != nil || info == nil {
			return mc.dropMention(qq, err)
		}
		return segment.Text("@" + info.Nickname), true
	}
	userID, err := strconv.ParseInt(qq, 10, 64)
	if err != nil {
		return mc.dropMention(qq, err)
	}
	info, err := mc.api.GetMemberInfo(ctx, scope.groupID, userID)
	if err != nil || info == nil {
		return mc.dropMention(qq, err)
	}
	return segment.Text("@" + info.Nickname), true
}

func (mc *messageConverter) dropMention(qq string, err error) (segment.Segment, bool) {
	mc.log.Warn().Err(err).Str("qq", qq).Msg("Failed to resolve mention, dropping segment")
	mc.metrics.DroppedSegments.WithLabelValues(dropMentionInfo).Inc()
	return segment.Segment{}, false
}

// convertForward fetches a forward bundle, flattens it and applies the image
// policy.
func (mc *messageConverter) convertForward(ctx context.Context, item onebot.Item) (segment.Segment, bool) {
	var data onebot.ForwardData
	if err := item.DecodeData(&data); err != nil {
		return mc.dropDecode(item, err)
	}
	nodes, err := mc.api.GetForwardMessage(ctx, string(data.ID))
	if err != nil {
		mc.log.Warn().Err(err).Str("forward_id", string(data.ID)).Msg("Failed to fetch forward bundle, dropping segment")
		mc.metrics.DroppedSegments.WithLabelValues(dropForwardFetch).Inc()
		return segment.Segment{}, false
	}
	tree, count, ok := flattenForward(nodes, 0)
	if !ok {
		mc.log.Warn().Str("forward_id", string(data.ID)).Msg("Forward bundle is empty, dropping segment")
		mc.metrics.DroppedSegments.WithLabelValues(dropForwardEmpty).Inc()
		return segment.Segment{}, false
	}
	mc.log.Debug().
		Str("forward_id", string(data.ID)).
		Int("image_count", count).
		Msg("Flattened forward bundle")
	return mc.applyImagePolicy(ctx, tree, count), true
}
