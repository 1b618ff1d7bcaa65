// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.mau.fi/util/exsync"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
)

var (
	ErrRequestTimeout   = errors.New("gateway request timed out")
	ErrNotConnected     = errors.New("gateway not connected")
	ErrConnectionClosed = errors.New("gateway connection closed")
	ErrAPIFailed        = errors.New("gateway API call failed")
)

const writeTimeout = 10 * time.Second

// NapcatClient serves a single reverse WebSocket connection from a NapCat
// gateway. One goroutine reads frames, routes API responses to their callers
// and records meta events; another handles the remaining events one at a time
// in arrival order.
type NapcatClient struct {
	connector  *NapcatConnector
	dispatcher Dispatcher
	api        OneBotAPI
	converter  *messageConverter

	conn       *websocket.Conn
	writeMu    sync.Mutex
	remoteAddr string
	selfID     atomic.Int64

	heartbeat  *HeartbeatState
	monitor    atomic.Pointer[LivenessMonitor]
	monitorCtx context.Context

	pending        *exsync.Map[string, chan *onebot.APIResponse]
	events         *frameQueue
	requestTimeout time.Duration
	connectedAt    time.Time
	now            func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var _ OneBotAPI = (*NapcatClient)(nil)

// NewNapcatClient creates a client for an upgraded gateway connection. conn
// may be nil, in which case API calls fail with ErrNotConnected.
func NewNapcatClient(connector *NapcatConnector, conn *websocket.Conn, remoteAddr string, selfID int64) *NapcatClient {
	log := connector.Log.With().
		Str("component", "napcat_client").
		Str("remote_addr", remoteAddr).
		Logger()
	cfg := connector.Config
	c := &NapcatClient{
		connector:      connector,
		dispatcher:     connector.Dispatcher,
		conn:           conn,
		remoteAddr:     remoteAddr,
		heartbeat:      NewHeartbeatState(cfg.initialHeartbeatInterval()),
		monitorCtx:     connector.context(),
		pending:        exsync.NewMap[string, chan *onebot.APIResponse](),
		events:         newFrameQueue(cfg.Napcat.QueueSize),
		requestTimeout: cfg.requestTimeout(),
		connectedAt:    time.Now(),
		now:            time.Now,
		stopChan:       make(chan struct{}),
		log:            log,
	}
	c.selfID.Store(selfID)
	c.events.onBacklog = func(n int) {
		c.log.Warn().Int("queued", n).Msg("Event backlog reached queue_size, processing is falling behind")
	}
	c.api = c
	c.converter = &messageConverter{
		api:              c,
		images:           connector.Images,
		metrics:          connector.Metrics,
		maxForwardImages: cfg.Images.MaxForwardImages,
		log: connector.Log.With().
			Str("component", "converter").
			Str("remote_addr", remoteAddr).
			Logger(),
	}
	return c
}

// Run serves the connection until it closes or ctx is canceled.
func (c *NapcatClient) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	processed := make(chan struct{})
	go func() {
		defer close(processed)
		c.processEvents(ctx)
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.Disconnect()
		case <-c.stopChan:
		}
	}()

	c.log.Info().Int64("self_id", c.SelfID()).Msg("Gateway connected")
	c.listenWebSocket()
	c.Disconnect()
	cancel()
	<-processed
	c.log.Info().Msg("Gateway disconnected")
}

func (c *NapcatClient) listenWebSocket() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopChan:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info().Err(err).Msg("Gateway closed the connection")
				} else {
					c.log.Warn().Err(err).Msg("Failed to read from gateway")
				}
			}
			return
		}
		c.routeFrame(data)
	}
}

// routeFrame hands API responses to their waiting caller and handles meta
// events in place. Everything else is queued for the event processor. It
// never blocks on the processor.
func (c *NapcatClient) routeFrame(data []byte) {
	postType := gjson.GetBytes(data, "post_type")
	if echo := gjson.GetBytes(data, "echo"); echo.Exists() && !postType.Exists() {
		c.deliverResponse(echo.String(), data)
		return
	}
	if postType.String() == onebot.PostTypeMetaEvent {
		c.handleFrame(c.monitorCtx, data)
		return
	}
	c.events.Push(data)
}

func (c *NapcatClient) deliverResponse(echo string, data []byte) {
	waiter, ok := c.pending.Pop(echo)
	if !ok {
		c.log.Debug().
			Str("echo", echo).
			Str("action", ParseEchoAction(echo)).
			Msg("Dropping API response without a waiting caller")
		return
	}
	var resp onebot.APIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		resp = onebot.APIResponse{Status: "failed", Echo: echo, Message: err.Error()}
	}
	waiter <- &resp
}

func (c *NapcatClient) processEvents(ctx context.Context) {
	for {
		data, ok := c.events.Pop(ctx)
		if !ok {
			return
		}
		c.handleFrame(ctx, data)
	}
}

// call performs an API action and waits for its response, up to the
// configured request timeout.
func (c *NapcatClient) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := MakeEchoID(action)
	waiter := make(chan *onebot.APIResponse, 1)
	c.pending.Set(echo, waiter)
	defer c.pending.Delete(echo)

	if err := c.send(&onebot.APIRequest{Action: action, Params: params, Echo: echo}); err != nil {
		c.countCall(action, "error")
		return nil, fmt.Errorf("failed to send %s request: %w", action, err)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()
	select {
	case resp := <-waiter:
		if !resp.OK() {
			c.countCall(action, "failed")
			return nil, fmt.Errorf("%w: %s returned %q (retcode %d): %s", ErrAPIFailed, action, resp.Status, resp.RetCode, resp.Message)
		}
		c.countCall(action, "ok")
		return resp.Data, nil
	case <-timer.C:
		c.countCall(action, "timeout")
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, action, c.requestTimeout)
	case <-c.stopChan:
		c.countCall(action, "error")
		return nil, fmt.Errorf("%s: %w", action, ErrConnectionClosed)
	case <-ctx.Done():
		c.countCall(action, "error")
		return nil, ctx.Err()
	}
}

func (c *NapcatClient) countCall(action, result string) {
	c.connector.Metrics.APICalls.WithLabelValues(action, result).Inc()
}

func (c *NapcatClient) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.stopChan:
		return ErrConnectionClosed
	default:
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Disconnect closes the connection and stops the client's loops. It is safe
// to call more than once.
func (c *NapcatClient) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// SelfID returns the bot account id served by this connection, or 0 if not
// yet known.
func (c *NapcatClient) SelfID() int64 {
	return c.selfID.Load()
}

// Alive reports whether the latest liveness monitor still considers the
// connection healthy. A connection without a monitor counts as alive.
func (c *NapcatClient) Alive() bool {
	lm := c.monitor.Load()
	return lm == nil || lm.Alive()
}

// startMonitor launches a liveness monitor for the connection. It runs until
// the heartbeat goes stale or the process shuts down. An earlier monitor on
// the same connection keeps running on the shared state.
func (c *NapcatClient) startMonitor(selfID int64) *LivenessMonitor {
	lm := NewLivenessMonitor(c.heartbeat, selfID, c.connector.Log)
	lm.now = c.now
	lm.closed = c.stopChan
	lm.onDead = c.connector.Metrics.LivenessLost.Inc
	if prev := c.monitor.Swap(lm); prev != nil {
		select {
		case <-prev.Done():
		default:
			c.log.Debug().
				Int64("previous_self_id", prev.SelfID()).
				Msg("Earlier liveness monitor still running")
		}
	}
	go lm.Run(c.monitorCtx)
	return lm
}
