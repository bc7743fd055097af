package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/seermedical/seer-client-go/pkg/cache"
	"github.com/seermedical/seer-client-go/pkg/retry"
)

// Download fetches a data chunk from a pre-signed URL, retrying transient
// failures. Chunk URLs carry their own signature, so no session headers
// are sent. With Redis configured, chunks are served from and stored in
// the cache.
func (c *Client) Download(ctx context.Context, chunkURL string) ([]byte, error) {
	var data []byte
	_, err := retry.Do(ctx, "download", c.config.Retry, func(int) error {
		d, err := c.download(ctx, chunkURL)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		classify(err)
		return nil, err
	}
	return data, nil
}

// download makes one cached download attempt.
func (c *Client) download(ctx context.Context, chunkURL string) ([]byte, error) {
	key := cache.ChunkKey(chunkURL)

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("key", key.String()).Msg("Chunk cache hit")
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("download", "network_error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download chunk: %w", err)
		}
		return nil, &retry.TransientRequestError{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues("download", strconv.Itoa(resp.StatusCode)).Inc()

	if retry.IsRetriableStatus(resp.StatusCode) {
		return nil, &retry.TransientRequestError{Op: "download", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: snippet(body)}
	}

	if c.cache == nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &retry.TransientRequestError{Op: "download", StatusCode: resp.StatusCode, Err: err}
		}
		return data, nil
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, &retry.TransientRequestError{Op: "download", StatusCode: resp.StatusCode, Err: err}
	}
	if err := c.cache.Set(ctx, key, entry); errors.Is(err, cache.ErrEntryTooLarge) {
		c.logger.Debug().Err(err).Str("key", key.String()).Msg("Chunk not cached")
	} else if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache chunk")
	} else {
		c.logger.Debug().
			Str("key", key.String()).
			Dur("ttl", entry.TTL()).
			Msg("Cached chunk")
	}
	return entry.Data, nil
}
