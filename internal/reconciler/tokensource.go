package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

const maxTokenResponseBytes = 64 << 10

// HTTPTokenSource fetches credentials from the server's /api/token endpoint.
type HTTPTokenSource struct {
	BaseURL string
	// Client defaults to http.DefaultClient. Timeouts come from the request context.
	Client *http.Client
}

type tokenResponse struct {
	Token       string `json:"token"`
	EndpointURL string `json:"endpointUrl"`
	Identity    string `json:"identity"`
	RoomName    string `json:"roomName"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	UserType    string `json:"userType"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (s *HTTPTokenSource) Fetch(ctx context.Context, req TokenRequest) (*Credential, error) {
	u, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/api/token")
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrTokenFetch, err)
	}
	q := url.Values{}
	q.Set("identity", req.Identity)
	q.Set("roomName", req.RoomName)
	if req.DisplayName != "" {
		q.Set("name", req.DisplayName)
	}
	if req.AvatarURL != "" {
		q.Set("avatar", req.AvatarURL)
	}
	if req.IsAuthenticated {
		q.Set("isAuthenticated", strconv.FormatBool(true))
		if req.UserID != "" {
			q.Set("userId", req.UserID)
		}
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrRequestTimedOut, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTokenFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
			if e.Details != "" {
				msg += ": " + e.Details
			}
		}
		return nil, &FetchError{Status: resp.StatusCode, Message: msg}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	if tr.Token == "" || tr.EndpointURL == "" {
		return nil, &FetchError{Status: resp.StatusCode, Message: "response missing token or endpointUrl"}
	}

	return &Credential{
		Token:       tr.Token,
		EndpointURL: tr.EndpointURL,
		Identity:    tr.Identity,
		RoomName:    tr.RoomName,
		DisplayName: tr.DisplayName,
		Avatar:      tr.Avatar,
		UserType:    identity.ParseKind(tr.UserType),
	}, nil
}
