// Package rest is the typed client for the backend REST boundaries the
// realtime core depends on: the conversation list, message history, message
// send, and user directory APIs. All calls run behind a circuit breaker so
// a broken backend degrades to fast failures instead of piling up blocked
// requests; retry is caller-initiated, never automatic here.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/sony/gobreaker"
)

// Client talks to the backend REST API.
type Client struct {
	base    string
	selfID  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New creates a Client rooted at baseURL. selfID identifies the local user
// and is used to derive canonical conversation keys.
func New(baseURL, selfID string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rest breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		selfID:  selfID,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// Conversations fetches the full conversation-list snapshot.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var dtos []conversationDTO
	if err := c.getJSON(ctx, "/api/conversations", &dtos); err != nil {
		return nil, fmt.Errorf("rest: conversations: %w", err)
	}

	out := make([]model.Conversation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, mapConversation(c.selfID, d))
	}
	return out, nil
}

// History fetches the ordered message history exchanged with otherUserID.
func (c *Client) History(ctx context.Context, otherUserID string) ([]model.Message, error) {
	var dtos []messageDTO
	path := "/api/messages/" + url.PathEscape(otherUserID)
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("rest: history %s: %w", otherUserID, err)
	}

	out := make([]model.Message, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, mapMessage(d))
	}
	return out, nil
}

// SendMessage persists a message addressed to receiverID and returns the
// created record.
func (c *Client) SendMessage(ctx context.Context, receiverID, text string) (model.Message, error) {
	body, err := json.Marshal(sendMessageRequest{ReceiverID: receiverID, Text: text})
	if err != nil {
		return model.Message{}, fmt.Errorf("rest: marshal send request: %w", err)
	}

	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &dto); err != nil {
		return model.Message{}, fmt.Errorf("rest: send message: %w", err)
	}
	return mapMessage(dto), nil
}

// User resolves a single directory record. Transient failures are returned
// to the caller, which owns the retry policy.
func (c *Client) User(ctx context.Context, userID string) (model.User, error) {
	var dto userDTO
	path := "/api/users/" + url.PathEscape(userID)
	if err := c.getJSON(ctx, path, &dto); err != nil {
		return model.User{}, fmt.Errorf("rest: user %s: %w", userID, err)
	}
	return mapUser(dto), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		// Session identity travels as a header; real auth is an external
		// concern layered on by the embedding application.
		req.Header.Set("X-User-ID", c.selfID)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}

		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
