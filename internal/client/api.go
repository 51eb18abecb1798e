// Package client is the event-consuming side of the help desk: a websocket session that keeps
// an inbox and chat views current, plus the REST calls those views are refreshed from.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response rendered by the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Identity is the logged-in account plus its bearer token.
type Identity struct {
	User      dto.UserResponse
	Token     string
	ExpiresAt time.Time
}

// APIClient calls the REST API with fiber's HTTP agent.
type APIClient struct {
	baseURL string
	timeout time.Duration
	token   string
}

// NewAPIClient builds a client for baseURL, e.g. http://localhost:8080.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// SetToken sets the bearer token sent with every request.
func (c *APIClient) SetToken(token string) { c.token = token }

// Token returns the current bearer token.
func (c *APIClient) Token() string { return c.token }

// Login exchanges credentials for a token and keeps it for later calls.
func (c *APIClient) Login(ctx context.Context, email, password string) (*Identity, error) {
	var out struct {
		Data struct {
			User dto.UserResponse `json:"user"`
			Auth dto.AuthResponse `json:"auth"`
		} `json:"data"`
	}
	body := dto.UserLoginRequest{Email: email, Password: password}
	if err := c.do(ctx, fiber.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.token = out.Data.Auth.Token
	return &Identity{User: out.Data.User, Token: out.Data.Auth.Token, ExpiresAt: out.Data.Auth.ExpiresAt}, nil
}

// Notifications fetches the inbox.
func (c *APIClient) Notifications(ctx context.Context, limit int) (dto.NotificationListResponse, error) {
	var out dto.NotificationListResponse
	path := "/notifications"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, fiber.MethodGet, path, nil, &out)
	return out, err
}

// MarkAllRead clears the unread badge.
func (c *APIClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, fiber.MethodPut, "/notifications/read-all", nil, nil)
}

// Messages fetches one chronological page of a ticket's chat.
func (c *APIClient) Messages(ctx context.Context, ticketID string, page, limit int) (dto.MessageListResponse, error) {
	var out dto.MessageListResponse
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	err := c.do(ctx, fiber.MethodGet, "/tickets/"+url.PathEscape(ticketID)+"/messages?"+q.Encode(), nil, &out)
	return out, err
}

// SendMessage posts to a ticket's chat and returns the stored message.
func (c *APIClient) SendMessage(ctx context.Context, ticketID, content string) (dto.MessageResponse, error) {
	var out struct {
		Data dto.MessageResponse `json:"data"`
	}
	err := c.do(ctx, fiber.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/messages", dto.SendMessageRequest{Content: content}, &out)
	return out.Data, err
}

// MyChats lists the caller's chats, most recent first.
func (c *APIClient) MyChats(ctx context.Context) ([]dto.ChatSummaryResponse, error) {
	var out struct {
		Data []dto.ChatSummaryResponse `json:"data"`
	}
	err := c.do(ctx, fiber.MethodGet, "/tickets/my-chats", nil, &out)
	return out.Data, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	var agent *fiber.Agent
	target := c.baseURL + path
	switch method {
	case fiber.MethodPost:
		agent = fiber.Post(target)
	case fiber.MethodPut:
		agent = fiber.Put(target)
	default:
		agent = fiber.Get(target)
	}
	agent.Timeout(timeout)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		agent.JSON(body)
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}
	if status >= fiber.StatusBadRequest {
		return decodeAPIError(status, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
