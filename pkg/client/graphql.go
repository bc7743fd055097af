package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/seermedical/seer-client-go/pkg/auth"
	"github.com/seermedical/seer-client-go/pkg/retry"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// Execute runs one GraphQL query or mutation and returns its data member.
// partyID, when set, selects the organisation the query runs for.
//
// Each request waits for a pacing slot and carries fresh session headers.
// Transient failures are retried with backoff. When the server rejects the
// session the client re-authenticates and re-issues the query, up to
// MaxInvocations times.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, partyID string) (json.RawMessage, error) {
	var data json.RawMessage
	_, err := retry.Do(ctx, "graphql", c.config.Retry, func(int) error {
		d, err := c.query(ctx, query, variables, partyID)
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

// query issues one logical query without transient retries, handling
// rejected sessions.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, partyID string) (json.RawMessage, error) {
	var lastErr error
	for invocation := 1; invocation <= c.config.MaxInvocations; invocation++ {
		headers, err := c.auth.Headers(ctx)
		if err != nil {
			return nil, err
		}

		data, err := c.post(ctx, query, variables, partyID, headers)
		if !errors.Is(err, ErrNotAuthenticated) {
			return data, err
		}

		lastErr = err
		reauthTotal.Inc()
		c.logger.Warn().
			Int("invocation", invocation).
			Msg("Session rejected, re-authenticating")
		c.invalidate(headers)
	}
	return nil, &auth.AuthenticationError{Kind: c.kind, Err: lastErr}
}

// invalidate drops the session that produced sent, unless another request
// has already replaced it.
func (c *Client) invalidate(sent http.Header) {
	if a, ok := c.auth.(interface{ Session() *auth.Session }); ok {
		if cur := a.Session(); cur != nil && !sameCredentials(cur.Headers, sent) {
			return
		}
	}
	c.auth.Invalidate()
}

func sameCredentials(a, b http.Header) bool {
	return a.Get("Cookie") == b.Get("Cookie") && a.Get("Authorization") == b.Get("Authorization")
}

// post sends a single GraphQL request.
func (c *Client) post(ctx context.Context, query string, variables map[string]any, partyID string, headers http.Header) (json.RawMessage, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	endpoint := c.apiURL + "/graphql"
	if partyID != "" {
		endpoint += "?" + url.Values{"partyId": {partyID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues("graphql").Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("graphql", "network_error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graphql request: %w", err)
		}
		return nil, &retry.TransientRequestError{Op: "graphql", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retry.TransientRequestError{Op: "graphql", StatusCode: resp.StatusCode, Err: err}
	}
	requestsTotal.WithLabelValues("graphql", strconv.Itoa(resp.StatusCode)).Inc()

	if retry.IsRetriableStatus(resp.StatusCode) {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Msg("GraphQL request failed transiently")
		return nil, &retry.TransientRequestError{Op: "graphql", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: snippet(raw), Err: ErrNotAuthenticated}
	}

	var env graphQLResponse
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && len(env.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range env.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
			if e.Extensions.Code != "" {
				gqlErr.Codes = append(gqlErr.Codes, e.Extensions.Code)
			}
		}
		return nil, gqlErr
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: snippet(raw)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode graphql response: %w", decodeErr)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("GraphQL request complete")
	return env.Data, nil
}

// extract walks path through nested JSON objects. A missing member or a
// null along the way yields JSON null.
func extract(data json.RawMessage, path ...string) (json.RawMessage, error) {
	cur := data
	for _, key := range path {
		if len(bytes.TrimSpace(cur)) == 0 || bytes.Equal(bytes.TrimSpace(cur), []byte("null")) {
			return json.RawMessage("null"), nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return nil, fmt.Errorf("response member %q: %w", key, err)
		}
		next, ok := obj[key]
		if !ok {
			return json.RawMessage("null"), nil
		}
		cur = next
	}
	if len(cur) == 0 {
		return json.RawMessage("null"), nil
	}
	return cur, nil
}

// decodeAt unmarshals the member at path into v.
func decodeAt(data json.RawMessage, v any, path ...string) error {
	raw, err := extract(data, path...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
