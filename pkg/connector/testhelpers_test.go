// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
	"github.com/aiku/maibot-napcat-adapter/pkg/connector/segment"
)

const (
	testSelfID  = 10001
	testUserID  = 20002
	testGroupID = 30003
)

var errFake = errors.New("fake failure")

// mockDispatcher captures submitted envelopes for test assertions.
type mockDispatcher struct {
	mu        sync.Mutex
	envelopes []*MessageEnvelope
	err       error
	closed    bool
}

func (m *mockDispatcher) Submit(_ context.Context, env *MessageEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *mockDispatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockDispatcher) Envelopes() []*MessageEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*MessageEnvelope, len(m.envelopes))
	copy(cp, m.envelopes)
	return cp
}

// fakeAPI is an in-memory OneBotAPI. It records every call.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	Groups   map[int64]*onebot.GroupInfo
	Members  map[string]*onebot.MemberInfo
	Self     *onebot.LoginInfo
	Forwards map[string][]onebot.ForwardNode
	// Fail makes the named action return an error.
	Fail map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		Groups:   make(map[int64]*onebot.GroupInfo),
		Members:  make(map[string]*onebot.MemberInfo),
		Self:     &onebot.LoginInfo{UserID: testSelfID, Nickname: "MaiMai"},
		Forwards: make(map[string][]onebot.ForwardNode),
		Fail:     make(map[string]error),
	}
}

func memberKey(groupID, userID int64) string {
	return fmt.Sprintf("%d:%d", groupID, userID)
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.Fail[call]
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeAPI) Called(action string) int {
	n := 0
	for _, call := range f.Calls() {
		if call == action {
			n++
		}
	}
	return n
}

func (f *fakeAPI) GetGroupInfo(_ context.Context, groupID int64) (*onebot.GroupInfo, error) {
	if err := f.record(onebot.ActionGetGroupInfo); err != nil {
		return nil, err
	}
	return f.Groups[groupID], nil
}

func (f *fakeAPI) GetMemberInfo(_ context.Context, groupID, userID int64) (*onebot.MemberInfo, error) {
	if err := f.record(onebot.ActionGetGroupMemberInfo); err != nil {
		return nil, err
	}
	return f.Members[memberKey(groupID, userID)], nil
}

func (f *fakeAPI) GetSelfInfo(_ context.Context) (*onebot.LoginInfo, error) {
	if err := f.record(onebot.ActionGetLoginInfo); err != nil {
		return nil, err
	}
	return f.Self, nil
}

func (f *fakeAPI) GetForwardMessage(_ context.Context, messageID string) ([]onebot.ForwardNode, error) {
	if err := f.record(onebot.ActionGetForwardMsg); err != nil {
		return nil, err
	}
	nodes, ok := f.Forwards[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown forward %s", ErrAPIFailed, messageID)
	}
	return nodes, nil
}

// fakeImages returns "b64:<url>" for every url unless it is listed in Fail.
type fakeImages struct {
	mu    sync.Mutex
	calls []string
	Fail  map[string]bool
}

func newFakeImages() *fakeImages {
	return &fakeImages{Fail: make(map[string]bool)}
}

func (f *fakeImages) FetchImage(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.Fail[url] {
		return "", errFake
	}
	return "b64:" + url, nil
}

func (f *fakeImages) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Dispatch: DispatchConfig{Type: DispatchRouter, RouterURL: "ws://127.0.0.1:1/ws"},
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

func newTestConnector(t *testing.T) (*NapcatConnector, *mockDispatcher, *fakeImages) {
	t.Helper()
	dispatcher := &mockDispatcher{}
	images := newFakeImages()
	nc := NewNapcatConnector(newTestConfig(t), dispatcher, images, zerolog.Nop())
	return nc, dispatcher, images
}

type testClient struct {
	*NapcatClient
	API        *fakeAPI
	Images     *fakeImages
	Dispatcher *mockDispatcher
}

// newTestClient builds a client with no connection, backed by fakes.
func newTestClient(t *testing.T) *testClient {
	t.Helper()
	nc, dispatcher, images := newTestConnector(t)
	c := NewNapcatClient(nc, nil, "test", testSelfID)
	c.monitorCtx = t.Context()
	api := newFakeAPI()
	c.api = api
	c.converter.api = api
	return &testClient{NapcatClient: c, API: api, Images: images, Dispatcher: dispatcher}
}

func mustItem(itemType string, data any) onebot.Item {
	item, err := onebot.NewItem(itemType, data)
	if err != nil {
		panic(err)
	}
	return item
}

func textItem(text string) onebot.Item {
	return mustItem(onebot.ItemText, onebot.TextData{Text: text})
}

func imageItem(url string) onebot.Item {
	return mustItem(onebot.ItemImage, onebot.ImageData{URL: url, SubType: ptr.Ptr(onebot.Int(0))})
}

func stickerItem(url string) onebot.Item {
	return mustItem(onebot.ItemImage, onebot.ImageData{URL: url, SubType: ptr.Ptr(onebot.Int(1))})
}

func atItem(qq string) onebot.Item {
	return mustItem(onebot.ItemAt, onebot.AtData{QQ: onebot.FlexString(qq)})
}

func forwardItem(id string) onebot.Item {
	return mustItem(onebot.ItemForward, onebot.ForwardData{ID: onebot.FlexString(id)})
}

func nestedForwardItem(nodes ...onebot.ForwardNode) onebot.Item {
	return mustItem(onebot.ItemForward, onebot.ForwardData{ID: "nested", Content: nodes})
}

func node(nick string, items ...onebot.Item) onebot.ForwardNode {
	return onebot.ForwardNode{
		Sender:  &onebot.Sender{Nickname: nick},
		Message: items,
	}
}

func groupMessage(items ...onebot.Item) *onebot.Event {
	return &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: onebot.MessageTypeGroup,
		SubType:     onebot.SubTypeNormal,
		SelfID:      testSelfID,
		MessageID:   555,
		UserID:      testUserID,
		GroupID:     testGroupID,
		Sender:      &onebot.Sender{UserID: testUserID, Nickname: "alice", Card: "Alice"},
		Message:     items,
		RawMessage:  "raw",
	}
}

func privateMessage(items ...onebot.Item) *onebot.Event {
	return &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: onebot.MessageTypePrivate,
		SubType:     onebot.SubTypeFriend,
		SelfID:      testSelfID,
		MessageID:   556,
		UserID:      testUserID,
		Sender:      &onebot.Sender{UserID: testUserID, Nickname: "alice"},
		Message:     items,
	}
}

// texts returns the text of every text leaf in document order.
func texts(seg segment.Segment) []string {
	switch seg.Kind() {
	case segment.KindText:
		return []string{seg.Text()}
	case segment.KindList:
		var out []string
		for _, child := range seg.Children() {
			out = append(out, texts(child)...)
		}
		return out
	default:
		return nil
	}
}

// leaves returns every image and emoji leaf in document order.
func leaves(seg segment.Segment) []segment.Segment {
	if seg.IsImage() {
		return []segment.Segment{seg}
	}
	var out []segment.Segment
	for _, child := range seg.Children() {
		out = append(out, leaves(child)...)
	}
	return out
}
