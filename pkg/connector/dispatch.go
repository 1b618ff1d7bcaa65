// Copyright 2024-2026 Aiku AI

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Dispatcher hands converted messages to MaiBot. Submit is fire-and-forget
// from the pipeline's point of view: errors are logged and the message is
// not retried.
type Dispatcher interface {
	Submit(ctx context.Context, env *MessageEnvelope) error
	Close() error
}

// NewDispatcher creates the sink selected by cfg.Dispatch.
func NewDispatcher(cfg *Config, log zerolog.Logger) (Dispatcher, error) {
	switch cfg.Dispatch.Type {
	case DispatchRouter:
		return NewRouterDispatcher(cfg.Dispatch.RouterURL, cfg.Platform, log), nil
	case DispatchRedis:
		return NewRedisDispatcher(cfg.Dispatch, log)
	default:
		return nil, fmt.Errorf("unknown dispatch type %q", cfg.Dispatch.Type)
	}
}

// RouterDispatcher sends envelopes as JSON text frames to a MaiBot router
// WebSocket. The connection is dialed on first use and again after it fails.
type RouterDispatcher struct {
	url      string
	platform string
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	log  zerolog.Logger
}

var _ Dispatcher = (*RouterDispatcher)(nil)

func NewRouterDispatcher(url, platform string, log zerolog.Logger) *RouterDispatcher {
	return &RouterDispatcher{
		url:      url,
		platform: platform,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.With().Str("component", "router_dispatcher").Logger(),
	}
}

func (rd *RouterDispatcher) Submit(ctx context.Context, env *MessageEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn == nil {
		header := http.Header{}
		header.Set("platform", rd.platform)
		conn, _, err := rd.dialer.DialContext(ctx, rd.url, header)
		if err != nil {
			return fmt.Errorf("failed to connect to router: %w", err)
		}
		rd.log.Info().Str("url", rd.url).Msg("Connected to MaiBot router")
		rd.conn = conn
		go rd.drain(conn)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err = rd.conn.SetWriteDeadline(deadline); err == nil {
		err = rd.conn.WriteMessage(websocket.TextMessage, data)
	}
	if err != nil {
		_ = rd.conn.Close()
		rd.conn = nil
		return fmt.Errorf("failed to send envelope to router: %w", err)
	}
	return nil
}

// drain reads and discards frames from the router until the connection
// breaks, so control frames are processed and closures are noticed.
func (rd *RouterDispatcher) drain(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			rd.mu.Lock()
			if rd.conn == conn {
				rd.conn = nil
				rd.log.Warn().Err(err).Msg("Router connection closed")
			}
			rd.mu.Unlock()
			_ = conn.Close()
			return
		}
		rd.log.Trace().Str("preview", truncatePreview(string(data), 80)).Msg("Ignoring frame from router")
	}
}

func (rd *RouterDispatcher) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn == nil {
		return nil
	}
	conn := rd.conn
	rd.conn = nil
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// RedisDispatcher writes envelopes to a Redis stream with XADD, or publishes
// them on a channel when no stream is configured.
type RedisDispatcher struct {
	client  *redis.Client
	stream  string
	channel string
	codec   string
	log     zerolog.Logger
}

var _ Dispatcher = (*RedisDispatcher)(nil)

func NewRedisDispatcher(cfg DispatchConfig, log zerolog.Logger) (*RedisDispatcher, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	codec := cfg.Codec
	if codec == "" {
		codec = CodecJSON
	}
	return &RedisDispatcher{
		client:  redis.NewClient(opts),
		stream:  cfg.RedisStream,
		channel: cfg.RedisChannel,
		codec:   codec,
		log:     log.With().Str("component", "redis_dispatcher").Logger(),
	}, nil
}

func (rd *RedisDispatcher) Submit(ctx context.Context, env *MessageEnvelope) error {
	payload, err := encodeEnvelope(env, rd.codec)
	if err != nil {
		return err
	}
	if rd.stream != "" {
		err = rd.client.XAdd(ctx, &redis.XAddArgs{
			Stream: rd.stream,
			Values: map[string]any{
				"envelope": payload,
				"codec":    rd.codec,
				"platform": env.MessageInfo.Platform,
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to add envelope to stream %s: %w", rd.stream, err)
		}
		return nil
	}
	if err = rd.client.Publish(ctx, rd.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope on %s: %w", rd.channel, err)
	}
	return nil
}

func (rd *RedisDispatcher) Close() error {
	return rd.client.Close()
}

// encodeEnvelope serializes env with the given codec. The msgpack form
// mirrors the JSON document so both codecs carry identical field names.
func encodeEnvelope(env *MessageEnvelope, codec string) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if codec != CodecMsgpack {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err = dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to re-read envelope: %w", err)
	}
	packed, err := msgpack.Marshal(normalizeNumbers(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to msgpack envelope: %w", err)
	}
	return packed, nil
}

// normalizeNumbers replaces json.Number values with int64 or float64.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}
