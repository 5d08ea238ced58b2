// Package oauth keeps the bot's user access token fresh. The chat handshake
// re-reads the token on every connect attempt, so a background refresher
// that swaps the token in memory is enough; nothing is persisted.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Options configures a Refresher. ClientID, ClientSecret, and RefreshToken
// are required for background refresh; with only AccessToken set the
// refresher degrades to a static token holder.
type Options struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scopes       []string
	Endpoint     oauth2.Endpoint // defaults to the Twitch endpoint; override in tests
	Interval     time.Duration   // wake-up period, default 5m
	Window       time.Duration   // refresh when remaining lifetime <= window, default 15m
	Logger       *slog.Logger
}

// Refresher holds the current user token and refreshes it before expiry.
type Refresher struct {
	cfg      oauth2.Config
	interval time.Duration
	window   time.Duration
	log      *slog.Logger

	mu  sync.RWMutex
	tok oauth2.Token
}

func New(opts Options) *Refresher {
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = endpoints.Twitch
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := opts.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{
		cfg: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       opts.Scopes,
		},
		interval: interval,
		window:   window,
		log:      log,
		tok: oauth2.Token{
			AccessToken:  opts.AccessToken,
			RefreshToken: opts.RefreshToken,
			Expiry:       opts.Expiry,
		},
	}
}

// Token returns the current access token. Safe for concurrent use; the chat
// client calls this on every connect attempt.
func (r *Refresher) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tok.AccessToken
}

// Expiry returns the current token's expiry (zero when unknown).
func (r *Refresher) Expiry() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tok.Expiry
}

// RefreshNow exchanges the refresh token immediately and swaps the result in.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.mu.RLock()
	cur := r.tok
	r.mu.RUnlock()
	if cur.RefreshToken == "" {
		return errors.New("oauth: no refresh token configured")
	}

	// Force the exchange even when the library considers the token valid.
	stale := cur
	stale.Expiry = time.Now().Add(-time.Minute)
	fresh, err := r.cfg.TokenSource(ctx, &stale).Token()
	if err != nil {
		return err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cur.RefreshToken
	}

	r.mu.Lock()
	r.tok = *fresh
	r.mu.Unlock()
	r.log.Info("user token refreshed", slog.Time("expiry", fresh.Expiry))
	return nil
}

// Start launches the jittered refresh loop. It returns immediately; the loop
// stops when ctx is cancelled. Without a refresh token it does nothing.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.RLock()
	hasRefresh := r.tok.RefreshToken != ""
	r.mu.RUnlock()
	if !hasRefresh {
		r.log.Info("token refresh disabled: no refresh token")
		return
	}

	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(r.interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter for scheduling diversity.
			jitterRange := int64(r.interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := r.interval + jitter
			if nextSleep < r.interval/2 {
				nextSleep = r.interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			exp := r.Expiry()
			if !exp.IsZero() && time.Until(exp) > r.window {
				continue
			}

			rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := r.RefreshNow(rctx)
			cancel()
			if err != nil {
				r.log.Warn("token refresh failed", slog.Any("err", err))
			}
		}
	}()
}
