// Package client calls the wiremeet HTTP API on behalf of the meet CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

// Client is a thin JSON client for the account and meeting endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// User mirrors the server's user representation.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// Principal converts u for use when joining a room.
func (u User) Principal() identity.Principal {
	return identity.Principal{UID: u.ID, DisplayName: u.DisplayName, Email: u.Email, PhotoURL: u.PhotoURL}
}

// Session is a signed-in user and their bearer token.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateMeeting asks the server for a fresh room name. bearer may be empty.
func (c *Client) CreateMeeting(ctx context.Context, bearer string) (string, error) {
	var out struct {
		RoomName string `json:"roomName"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/meetings", bearer, nil, &out); err != nil {
		return "", err
	}
	if out.RoomName == "" {
		return "", &APIError{Status: http.StatusOK, Message: "response missing roomName"}
	}
	return out.RoomName, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
