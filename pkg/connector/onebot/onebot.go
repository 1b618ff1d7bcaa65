// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package onebot holds the OneBot v11 wire types exchanged with a NapCat
// gateway over its reverse WebSocket.
//
// Only the fields the adapter reads are modelled. Integer identifiers are
// decoded with [Int], which accepts both JSON numbers and numeric strings
// since OneBot implementations disagree on the encoding.
package onebot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.mau.fi/util/jsontime"
)

// Post types.
const (
	PostTypeMetaEvent = "meta_event"
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeRequest   = "request"
)

// Meta event types and sub types.
const (
	MetaEventLifecycle = "lifecycle"
	MetaEventHeartbeat = "heartbeat"

	LifecycleConnect = "connect"
)

// Message types and sub types.
const (
	MessageTypePrivate = "private"
	MessageTypeGroup   = "group"

	SubTypeFriend = "friend"
	// SubTypeGroup on a private message marks a group-temporary session.
	SubTypeGroup  = "group"
	SubTypeNormal = "normal"
)

// Content item types.
const (
	ItemText    = "text"
	ItemFace    = "face"
	ItemImage   = "image"
	ItemRecord  = "record"
	ItemVideo   = "video"
	ItemAt      = "at"
	ItemRPS     = "rps"
	ItemDice    = "dice"
	ItemShake   = "shake"
	ItemPoke    = "poke"
	ItemShare   = "share"
	ItemReply   = "reply"
	ItemForward = "forward"
	ItemNode    = "node"
)

// ErrStringMessageFormat is returned when an event carries its message as a
// CQ-code string instead of an array of content items.
var ErrStringMessageFormat = errors.New("message uses string post format, array format is required")

// Int is an integer that tolerates being encoded as a JSON string.
type Int int64

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*i = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer string %q: %w", s, err)
		}
		*i = Int(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", n, err)
	}
	*i = Int(v)
	return nil
}

func (i Int) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// FlexString is a string that tolerates being encoded as a JSON number.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Status is the bot status carried by heartbeat meta events.
type Status struct {
	Online bool `json:"online"`
	Good   bool `json:"good"`
}

// Healthy reports whether the gateway declared itself online and good.
func (s *Status) Healthy() bool {
	return s != nil && s.Online && s.Good
}

// Sender identifies the author of a message or forward node.
type Sender struct {
	UserID   Int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

// Event is a single inbound OneBot frame that is not an API response.
type Event struct {
	PostType      string        `json:"post_type"`
	MetaEventType string        `json:"meta_event_type,omitempty"`
	MessageType   string        `json:"message_type,omitempty"`
	SubType       string        `json:"sub_type,omitempty"`
	SelfID        Int           `json:"self_id"`
	Time          jsontime.Unix `json:"time"`

	MessageID  Int     `json:"message_id,omitempty"`
	UserID     Int     `json:"user_id,omitempty"`
	GroupID    Int     `json:"group_id,omitempty"`
	Sender     *Sender `json:"sender,omitempty"`
	Message    Items   `json:"message,omitempty"`
	RawMessage string  `json:"raw_message,omitempty"`

	Status *Status `json:"status,omitempty"`
	// Interval is the heartbeat interval in milliseconds.
	Interval int64 `json:"interval,omitempty"`
}

// Items is an ordered list of content items.
type Items []Item

func (it *Items) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return ErrStringMessageFormat
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*it = items
	return nil
}

// Item is one typed piece of message content. Data is decoded lazily with
// [Item.DecodeData] into the struct matching Type.
type Item struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the item payload into v. A missing payload leaves v
// untouched.
func (it Item) DecodeData(v any) error {
	if len(it.Data) == 0 || bytes.Equal(it.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(it.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s item data: %w", it.Type, err)
	}
	return nil
}

// NewItem builds an item with its payload marshaled from data.
func NewItem(itemType string, data any) (Item, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Item{}, err
	}
	return Item{Type: itemType, Data: raw}, nil
}

type TextData struct {
	Text string `json:"text"`
}

// ImageData is the payload of an image item. SubType 0 is a regular image,
// anything else (including absent) is a sticker.
type ImageData struct {
	File    string `json:"file,omitempty"`
	URL     string `json:"url"`
	SubType *Int   `json:"sub_type,omitempty"`
}

// IsSticker reports whether the image should be treated as an emoji.
func (d ImageData) IsSticker() bool {
	return d.SubType == nil || *d.SubType != 0
}

type AtData struct {
	QQ   FlexString `json:"qq"`
	Name string     `json:"name,omitempty"`
}

// ForwardData is the payload of a forward item. Top-level items carry only ID;
// items nested inside a fetched bundle also carry their Content inline.
type ForwardData struct {
	ID      FlexString    `json:"id"`
	Content []ForwardNode `json:"content,omitempty"`
}

// ForwardNode is one message inside a forward bundle.
type ForwardNode struct {
	Sender  *Sender `json:"sender,omitempty"`
	Message Items   `json:"message"`
}

// Nickname returns the node author's nickname, or fallback when unknown.
func (n ForwardNode) Nickname(fallback string) string {
	if n.Sender == nil || n.Sender.Nickname == "" {
		return fallback
	}
	return n.Sender.Nickname
}
