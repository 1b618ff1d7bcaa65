// Copyright 2024-2026 Aiku AI

package connector

import (
	"time"

	"go.mau.fi/util/jsontime"
	"go.mau.fi/util/ptr"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

// UserInfo identifies the sender of a message.
type UserInfo struct {
	Platform     string  `json:"platform"`
	UserID       int64   `json:"user_id"`
	UserNickname string  `json:"user_nickname"`
	UserCardname *string `json:"user_cardname,omitempty"`
}

// GroupInfo identifies the group a message was posted in.
type GroupInfo struct {
	Platform  string `json:"platform"`
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name"`
}

// MessageInfo is the metadata part of a MessageEnvelope.
type MessageInfo struct {
	Platform     string        `json:"platform"`
	MessageID    int64         `json:"message_id"`
	Time         jsontime.Unix `json:"time"`
	UserInfo     *UserInfo     `json:"user_info"`
	GroupInfo    *GroupInfo    `json:"group_info,omitempty"`
	TemplateInfo any           `json:"template_info"`
	FormatInfo   any           `json:"format_info"`
}

// MessageEnvelope is a converted inbound message in MaiBot's MessageBase
// shape.
type MessageEnvelope struct {
	MessageInfo    MessageInfo     `json:"message_info"`
	MessageSegment segment.Segment `json:"message_segment"`
	RawMessage     string          `json:"raw_message,omitempty"`
}

func newUserInfo(platform string, sender *onebot.Sender) *UserInfo {
	ui := &UserInfo{
		Platform:     platform,
		UserID:       int64(sender.UserID),
		UserNickname: sender.Nickname,
	}
	if sender.Card != "" {
		ui.UserCardname = ptr.Ptr(sender.Card)
	}
	return ui
}

// eventTime returns the event timestamp, falling back to now when the gateway
// omitted it.
func eventTime(evt *onebot.Event, now time.Time) jsontime.Unix {
	if evt.Time.IsZero() || evt.Time.Unix() <= 0 {
		return jsontime.Unix{Time: now}
	}
	return evt.Time
}
