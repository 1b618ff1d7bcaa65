// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

var (
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrEmptyMessage           = errors.New("message has no content items")
	ErrNoConvertibleContent   = errors.New("message has no convertible content")
)

// handleFrame decodes one event frame and classifies it.
func (c *NapcatClient) handleFrame(ctx context.Context, data []byte) {
	var evt onebot.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		c.log.Warn().Err(err).
			Str("frame", truncatePreview(string(data), 200)).
			Msg("Failed to decode gateway event")
		return
	}
	c.handleEvent(ctx, &evt)
}

// handleEvent dispatches a gateway event to the appropriate handler.
func (c *NapcatClient) handleEvent(ctx context.Context, evt *onebot.Event) {
	events := c.connector.Metrics.Events
	switch evt.PostType {
	case onebot.PostTypeMetaEvent:
		events.WithLabelValues(evt.PostType).Inc()
		c.handleMetaEvent(ctx, evt)
	case onebot.PostTypeMessage:
		events.WithLabelValues(evt.PostType).Inc()
		c.handleMessage(ctx, evt)
	case onebot.PostTypeNotice, onebot.PostTypeRequest:
		events.WithLabelValues(evt.PostType).Inc()
		c.log.Debug().Str("post_type", evt.PostType).Str("sub_type", evt.SubType).Msg("Ignoring event")
	default:
		events.WithLabelValues("unknown").Inc()
		c.log.Trace().Str("post_type", evt.PostType).Msg("Unhandled post type")
	}
}

func (c *NapcatClient) handleMetaEvent(_ context.Context, evt *onebot.Event) {
	switch evt.MetaEventType {
	case onebot.MetaEventLifecycle:
		if evt.SubType != onebot.LifecycleConnect {
			c.log.Debug().Str("sub_type", evt.SubType).Msg("Ignoring lifecycle event")
			return
		}
		selfID := int64(evt.SelfID)
		if selfID != 0 {
			c.selfID.Store(selfID)
		}
		c.heartbeat.Beat(c.now())
		c.log.Info().Int64("self_id", selfID).Msg("Gateway lifecycle connect, starting liveness monitor")
		c.startMonitor(selfID)
	case onebot.MetaEventHeartbeat:
		if !evt.Status.Healthy() {
			c.log.Warn().
				Int64("self_id", int64(evt.SelfID)).
				Interface("status", evt.Status).
				Msg("Gateway reported an unhealthy heartbeat")
			return
		}
		c.heartbeat.Beat(c.now())
		c.heartbeat.SetInterval(time.Duration(evt.Interval) * time.Millisecond)
		c.log.Trace().Int64("interval_ms", evt.Interval).Msg("Heartbeat received")
	default:
		c.log.Trace().Str("meta_event_type", evt.MetaEventType).Msg("Unhandled meta event")
	}
}

func (c *NapcatClient) handleMessage(ctx context.Context, evt *onebot.Event) {
	env, err := c.parseMessageEvent(ctx, evt)
	if err != nil {
		c.log.Warn().Err(err).
			Int64("message_id", int64(evt.MessageID)).
			Int64("user_id", int64(evt.UserID)).
			Msg("Rejected message event")
		c.connector.Metrics.Rejected.WithLabelValues(rejectReason(err)).Inc()
		return
	}
	if env == nil {
		return
	}
	if err = c.dispatcher.Submit(ctx, env); err != nil {
		c.log.Error().Err(err).Int64("message_id", env.MessageInfo.MessageID).Msg("Failed to dispatch message")
		c.connector.Metrics.DispatchErrors.Inc()
		return
	}
	c.connector.Metrics.Dispatched.Inc()
	c.log.Debug().
		Int64("message_id", env.MessageInfo.MessageID).
		Str("preview", previewSegment(env.MessageSegment)).
		Msg("Dispatched message")
}

// parseMessageEvent classifies a message event and converts it into an
// envelope. Returns (nil, err) to reject the event or (env, nil) to proceed.
func (c *NapcatClient) parseMessageEvent(ctx context.Context, evt *onebot.Event) (*MessageEnvelope, error) {
	var isGroup bool
	switch {
	case evt.MessageType == onebot.MessageTypePrivate && evt.SubType == onebot.SubTypeFriend:
	case evt.MessageType == onebot.MessageTypeGroup && evt.SubType == onebot.SubTypeNormal:
		isGroup = true
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedMessageType, evt.MessageType, evt.SubType)
	}
	if len(evt.Message) == 0 {
		return nil, ErrEmptyMessage
	}

	var sender onebot.Sender
	if evt.Sender != nil {
		sender = *evt.Sender
	}
	if sender.UserID == 0 {
		sender.UserID = evt.UserID
	}
	selfID := int64(evt.SelfID)
	if selfID == 0 {
		selfID = c.SelfID()
	}
	platform := c.connector.Config.Platform

	env := &MessageEnvelope{
		MessageInfo: MessageInfo{
			Platform:  platform,
			MessageID: int64(evt.MessageID),
			Time:      eventTime(evt, c.now()),
			UserInfo:  newUserInfo(platform, &sender),
		},
		RawMessage: evt.RawMessage,
	}
	if isGroup {
		env.MessageInfo.GroupInfo = c.lookupGroup(ctx, int64(evt.GroupID))
	}

	segs := c.converter.convertItems(ctx, evt.Message, messageScope{
		selfID:  selfID,
		groupID: int64(evt.GroupID),
	})
	if len(segs) == 0 {
		return nil, ErrNoConvertibleContent
	}
	env.MessageSegment = segment.List(segs...)
	return env, nil
}

// lookupGroup resolves a group's name. Missing metadata yields an empty name.
func (c *NapcatClient) lookupGroup(ctx context.Context, groupID int64) *GroupInfo {
	gi := &GroupInfo{
		Platform: c.connector.Config.Platform,
		GroupID:  groupID,
	}
	info, err := c.api.GetGroupInfo(ctx, groupID)
	if err != nil {
		c.log.Warn().Err(err).Int64("group_id", groupID).Msg("Failed to get group info")
		return gi
	}
	if info != nil {
		gi.GroupName = info.GroupName
	}
	return gi
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMessageType):
		return "unsupported_type"
	case errors.Is(err, ErrEmptyMessage):
		return "empty"
	case errors.Is(err, ErrNoConvertibleContent):
		return "no_content"
	default:
		return "other"
	}
}
