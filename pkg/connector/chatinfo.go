// Copyright 2024-2026 Aiku AI

package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aiku/maibot-napcat-adapter/pkg/connector/onebot"
)

// forwardPreviewLength is how much of a forward bundle response is logged.
const forwardPreviewLength = 80

// GetGroupInfo returns the group's metadata, or nil if the gateway has none.
func (c *NapcatClient) GetGroupInfo(ctx context.Context, groupID int64) (*onebot.GroupInfo, error) {
	data, err := c.call(ctx, onebot.ActionGetGroupInfo, onebot.GetGroupInfoParams{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	var info *onebot.GroupInfo
	if err = decodeResponseData(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode group info: %w", err)
	}
	return info, nil
}

// GetMemberInfo returns a group member's metadata, or nil if the gateway has
// none.
func (c *NapcatClient) GetMemberInfo(ctx context.Context, groupID, userID int64) (*onebot.MemberInfo, error) {
	data, err := c.call(ctx, onebot.ActionGetGroupMemberInfo, onebot.GetGroupMemberInfoParams{
		GroupID: groupID,
		UserID:  userID,
		NoCache: true,
	})
	if err != nil {
		return nil, err
	}
	var info *onebot.MemberInfo
	if err = decodeResponseData(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode member info: %w", err)
	}
	return info, nil
}

// GetSelfInfo returns the logged-in bot account.
func (c *NapcatClient) GetSelfInfo(ctx context.Context) (*onebot.LoginInfo, error) {
	data, err := c.call(ctx, onebot.ActionGetLoginInfo, nil)
	if err != nil {
		return nil, err
	}
	var info *onebot.LoginInfo
	if err = decodeResponseData(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode login info: %w", err)
	}
	return info, nil
}

// GetForwardMessage fetches the nodes of a forward bundle.
func (c *NapcatClient) GetForwardMessage(ctx context.Context, messageID string) ([]onebot.ForwardNode, error) {
	data, err := c.call(ctx, onebot.ActionGetForwardMsg, onebot.GetForwardMsgParams{MessageID: messageID})
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("forward_id", messageID).
		Str("preview", truncatePreview(string(data), forwardPreviewLength)).
		Msg("Received forward bundle")
	var fm *onebot.ForwardMessages
	if err = decodeResponseData(data, &fm); err != nil {
		return nil, fmt.Errorf("failed to decode forward bundle: %w", err)
	}
	if fm == nil {
		return nil, nil
	}
	return fm.Messages, nil
}

func decodeResponseData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// maxImageSize caps how much of an image response is read.
const maxImageSize = 32 << 20

// HTTPImageFetcher downloads images over HTTP(S) and encodes them as base64.
// Downloads are rate limited across all callers.
type HTTPImageFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ ImageFetcher = (*HTTPImageFetcher)(nil)

// NewHTTPImageFetcher creates a fetcher from the images config section.
func NewHTTPImageFetcher(cfg ImageConfig, log zerolog.Logger) *HTTPImageFetcher {
	return &HTTPImageFetcher{
		client:  &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:     log.With().Str("component", "image_fetcher").Logger(),
	}
}

// FetchImage downloads url and returns its base64 encoding. An empty url
// yields an empty result without error.
func (f *HTTPImageFetcher) FetchImage(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("image fetch rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	f.log.Trace().Str("url", url).Int("size", len(body)).Msg("Downloaded image")
	return base64.StdEncoding.EncodeToString(body), nil
}
