// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs for user lookup, channel information, and subscription checks.
// Commands call through this boundary instead of talking HTTP directly.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// ErrNotFound reports a lookup that returned no matching resource.
var ErrNotFound = errors.New("twitchapi: not found")

// APIError is a non-2xx Helix response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitchapi: status %d: %s", e.Status, e.Body)
}

// User is a Helix users record.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// ChannelInformation is a Helix channels record.
type ChannelInformation struct {
	BroadcasterID    string `json:"broadcaster_id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterName  string `json:"broadcaster_name"`
	GameID           string `json:"game_id"`
	GameName         string `json:"game_name"`
	Title            string `json:"title"`
	Language         string `json:"broadcaster_language"`
}

// Subscription is a Helix subscriptions record.
type Subscription struct {
	BroadcasterID string `json:"broadcaster_id"`
	GifterLogin   string `json:"gifter_login"`
	IsGift        bool   `json:"is_gift"`
	Tier          string `json:"tier"`
}

// Client issues Helix requests. Exactly one token strategy should be set:
// UserToken (needed for subscription checks) takes precedence over AppToken.
type Client struct {
	ClientID   string
	UserToken  func() string
	AppToken   *TokenSource
	HTTPClient *http.Client
	BaseURL    string // defaults to the Helix endpoint; override in tests
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	if c.UserToken != nil {
		if tok := c.UserToken(); tok != "" {
			return strings.TrimPrefix(tok, "oauth:"), nil
		}
	}
	if c.AppToken != nil {
		return c.AppToken.Get(ctx)
	}
	return "", errors.New("twitchapi: no token configured")
}

// get performs an authenticated GET and decodes the body into out.
// A 404 returns ErrNotFound; other non-2xx statuses return *APIError.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	tok, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUsers resolves login names to user records. Unknown logins are simply
// absent from the result.
func (c *Client) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	if len(logins) == 0 {
		return nil, errors.New("twitchapi: no logins given")
	}
	q := url.Values{}
	for _, l := range logins {
		q.Add("login", strings.ToLower(strings.TrimPrefix(l, "#")))
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.get(ctx, "/users", q, &body); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return body.Data, nil
}

// GetUser resolves a single login, returning ErrNotFound when it does not exist.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	users, err := c.GetUsers(ctx, login)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("get user %q: %w", login, ErrNotFound)
	}
	return &users[0], nil
}

// GetChannelInformation fetches the channel record for a broadcaster id.
func (c *Client) GetChannelInformation(ctx context.Context, broadcasterID string) (*ChannelInformation, error) {
	if broadcasterID == "" {
		return nil, errors.New("twitchapi: broadcasterID empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	var body struct {
		Data []ChannelInformation `json:"data"`
	}
	if err := c.get(ctx, "/channels", q, &body); err != nil {
		return nil, fmt.Errorf("get channel information: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("get channel information %q: %w", broadcasterID, ErrNotFound)
	}
	return &body.Data[0], nil
}

// CheckUserSubscription reports whether userID subscribes to broadcasterID.
// A missing subscription is not an error; it returns (nil, false, nil).
func (c *Client) CheckUserSubscription(ctx context.Context, broadcasterID, userID string) (*Subscription, bool, error) {
	if broadcasterID == "" || userID == "" {
		return nil, false, errors.New("twitchapi: broadcasterID and userID required")
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("user_id", userID)
	var body struct {
		Data []Subscription `json:"data"`
	}
	err := c.get(ctx, "/subscriptions/user", q, &body)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("check subscription: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, false, nil
	}
	return &body.Data[0], true, nil
}
