// Package client owns the chat connection: dialing the transport, driving
// the PASS/NICK -> CAP REQ -> JOIN handshake, confirming join/part actions
// against bounded deadlines, reacting to server-forced reconnects, and
// feeding parsed messages to a handler in arrival order.
//
// All connection state (ConnectionState, the pending action, the presence
// tracker) is mutated only on the event loop inside Run. Other goroutines
// interact through Say/SendRaw (serialized sends), Close (hard teardown),
// and read-only snapshots.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/twitchbot/channel"
	"github.com/onnwee/twitchbot/irc"
	"github.com/onnwee/twitchbot/telemetry"
)

// DefaultAddr is the TLS endpoint of the Twitch chat ingress.
const DefaultAddr = "irc.chat.twitch.tv:6697"

// DefaultCaps are the capabilities requested during the handshake.
var DefaultCaps = []string{"twitch.tv/commands", "twitch.tv/membership", "twitch.tv/tags"}

// State is the connection state machine's current state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthPending
	StateCapPending
	StateJoinPending
	StateJoined
	StatePartPending
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateCapPending:
		return "cap_pending"
	case StateJoinPending:
		return "join_pending"
	case StateJoined:
		return "joined"
	case StatePartPending:
		return "part_pending"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fatal errors terminate Run; everything else funnels through the
// reconnect policy.
var (
	ErrAuthenticationFailed = errors.New("client: authentication failed")
	ErrReconnectExhausted   = errors.New("client: reconnect attempts exhausted")
	ErrCapNegotiationFailed = errors.New("client: capability negotiation timed out")
	ErrActionPending        = errors.New("client: an action is already pending confirmation")
)

// Control-flow sentinels internal to Run.
var (
	errGraceful        = errors.New("graceful shutdown")
	errClosed          = errors.New("hard close requested")
	errServerReconnect = errors.New("server requested reconnect")
	errJoinTimeout     = errors.New("join confirmation timed out")
	errAuthTimeout     = errors.New("auth confirmation timed out")
)

type actionKind int

const (
	actionJoin actionKind = iota + 1
	actionPart
)

func (k actionKind) String() string {
	if k == actionJoin {
		return "join"
	}
	return "part"
}

// pendingAction records a join or part awaiting server confirmation. At
// most one exists at a time; confirmations carry no correlation ids, so a
// second outstanding action of the same kind would be ambiguous.
type pendingAction struct {
	kind     actionKind
	issuedAt time.Time
	deadline time.Time
}

// Handler receives chat-class messages in arrival order. Invocations are
// serialized: the next message is not delivered until the previous call
// returns. The transport read loop keeps buffering in the meantime.
type Handler interface {
	HandleMessage(ctx context.Context, m *irc.Message)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, m *irc.Message)

func (f HandlerFunc) HandleMessage(ctx context.Context, m *irc.Message) { f(ctx, m) }

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	// Channel is the single target channel login (required).
	Channel string
	// Username is the bot's login (required).
	Username string
	// Token supplies the OAuth token for PASS at each connect, so a
	// refreshed token is picked up on reconnect.
	Token func() string
	// Addr is the server address the default DialFn connects to.
	// Defaults to DefaultAddr. Ignored when DialFn is set.
	Addr string
	// DialFn opens the transport. Defaults to TLS against Addr.
	// Any CRLF-delimited stream works, which is what the tests use.
	DialFn func(ctx context.Context) (io.ReadWriteCloser, error)
	// Caps are the capabilities to request. Defaults to DefaultCaps.
	Caps []string
	// ExpectTimeout bounds each handshake step and join/part confirmation.
	ExpectTimeout time.Duration
	// BackoffBase and BackoffCap shape the reconnect delay:
	// min(base*attempt, cap).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxReconnectAttempts is the consecutive-failure budget before Run
	// gives up with ErrReconnectExhausted.
	MaxReconnectAttempts int
	Logger               *slog.Logger
}

// Client is the connection state machine for one channel.
type Client struct {
	channel   string
	username  string
	token     func() string
	addr      string
	dialFn    func(ctx context.Context) (io.ReadWriteCloser, error)
	caps      []string
	expect    time.Duration
	base      time.Duration
	cap_      time.Duration
	maxTries  int
	log       *slog.Logger
	tracker   *channel.Channel
	state     atomic.Int32
	attempts  atomic.Int32
	closeOnce sync.Once
	closedCh  chan struct{}

	// mu guards the write side: conn, the outbound queue, and the
	// pending action record.
	mu      sync.Mutex
	conn    io.ReadWriteCloser
	outbox  []string
	pending *pendingAction

	// sawJoin is read and cleared by the reconnect loop to reset the
	// attempt counter after a confirmed join. Only Run touches it.
	sawJoin bool
	// deadline is the single outstanding expectation (handshake step or
	// pending action). Only the event loop touches it.
	deadline time.Time
}

// New builds a Client around a presence tracker for the target channel.
func New(opts Options, tracker *channel.Channel) *Client {
	c := &Client{
		channel:  strings.ToLower(strings.TrimPrefix(opts.Channel, "#")),
		username: strings.ToLower(opts.Username),
		token:    opts.Token,
		addr:     opts.Addr,
		dialFn:   opts.DialFn,
		caps:     opts.Caps,
		expect:   opts.ExpectTimeout,
		base:     opts.BackoffBase,
		cap_:     opts.BackoffCap,
		maxTries: opts.MaxReconnectAttempts,
		log:      opts.Logger,
		tracker:  tracker,
		closedCh: make(chan struct{}),
	}
	if c.token == nil {
		c.token = func() string { return "" }
	}
	if c.addr == "" {
		c.addr = DefaultAddr
	}
	if c.dialFn == nil {
		c.dialFn = func(ctx context.Context) (io.ReadWriteCloser, error) {
			d := tls.Dialer{}
			conn, err := d.DialContext(ctx, "tcp", c.addr)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	if len(c.caps) == 0 {
		c.caps = DefaultCaps
	}
	if c.expect <= 0 {
		c.expect = 10 * time.Second
	}
	if c.base <= 0 {
		c.base = time.Second
	}
	if c.cap_ <= 0 {
		c.cap_ = 30 * time.Second
	}
	if c.maxTries <= 0 {
		c.maxTries = 10
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// ReconnectAttempts returns the consecutive reconnect attempts since the
// last confirmed join.
func (c *Client) ReconnectAttempts() int { return int(c.attempts.Load()) }

// Channel returns the configured target channel login.
func (c *Client) Channel() string { return c.channel }

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	telemetry.SetConnectionState(int(s))
}

// Run connects and serves until the context is cancelled (graceful PART
// bounded by the confirmation deadline), Close is called, or a fatal error
// occurs. Recoverable failures are retried with bounded backoff.
func (c *Client) Run(ctx context.Context, h Handler) error {
	if c.channel == "" || c.username == "" {
		return errors.New("client: channel and username are required")
	}
	if h == nil {
		h = HandlerFunc(func(context.Context, *irc.Message) {})
	}

	attempt := 0
	for {
		err := c.runOnce(ctx, h)
		if c.sawJoin {
			attempt = 0
			c.sawJoin = false
		}
		c.attempts.Store(int32(attempt))

		switch {
		case err == nil, errors.Is(err, errGraceful):
			c.setState(StateDisconnected)
			return nil
		case errors.Is(err, errClosed):
			c.setState(StateClosed)
			return nil
		case errors.Is(err, ErrAuthenticationFailed):
			c.setState(StateClosed)
			return err
		}

		// Recoverable: transport error, forced reconnect, or a
		// handshake/join timeout.
		attempt++
		c.attempts.Store(int32(attempt))
		telemetry.CountReconnect()
		if attempt > c.maxTries {
			c.setState(StateClosed)
			return fmt.Errorf("%w: %d attempts, last error: %v", ErrReconnectExhausted, c.maxTries, err)
		}
		c.setState(StateReconnecting)
		delay := backoffDelay(c.base, c.cap_, attempt)
		c.log.Warn("chat connection lost; reconnecting",
			slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("err", err))
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return nil
		case <-c.closedCh:
			c.setState(StateClosed)
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce performs one full connection lifecycle: dial, handshake, serve,
// teardown. The returned error classifies what ended it.
func (c *Client) runOnce(ctx context.Context, h Handler) error {
	select {
	case <-c.closedCh:
		return errClosed
	case <-ctx.Done():
		return errGraceful
	default:
	}

	c.setState(StateConnecting)
	conn, err := c.dialFn(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		c.teardown()
	}()

	lines := make(chan string, 64)
	readErr := make(chan error, 1)
	go readLoop(conn, lines, readErr, done)

	// Handshake: credentials first, then wait for the welcome numeric.
	pass, err := irc.Pass(c.token())
	if err != nil {
		return err
	}
	if err := c.writeLine(pass, "PASS ******"); err != nil {
		return err
	}
	nick, err := irc.Nick(c.username)
	if err != nil {
		return err
	}
	if err := c.writeLine(nick, ""); err != nil {
		return err
	}
	c.setState(StateAuthPending)
	c.deadline = time.Now().Add(c.expect)

	departing := false
	ctxDone := ctx.Done()
	for {
		var expire <-chan time.Time
		if !c.deadline.IsZero() {
			expire = time.After(time.Until(c.deadline))
		}

		select {
		case <-c.closedCh:
			return errClosed

		case <-ctxDone:
			ctxDone = nil // trigger the graceful path only once
			if c.State() != StateJoined {
				return errGraceful
			}
			if err := c.beginPart(); err != nil {
				return errGraceful
			}
			departing = true

		case err := <-readErr:
			if departing {
				// The server closing the link during a deliberate part
				// is a normal shutdown, not a failure.
				return errGraceful
			}
			return fmt.Errorf("transport: %w", err)

		case <-expire:
			if time.Now().Before(c.deadline) {
				continue // stale timer from an already-moved deadline
			}
			return c.deadlineExpired()

		case line, ok := <-lines:
			if !ok {
				continue // readErr carries the reason
			}
			telemetry.CountLine()
			msg := irc.ParseAt(line, time.Now().UTC())
			if err := c.handleMessage(ctx, msg, h); err != nil {
				if errors.Is(err, errGraceful) && !departing {
					// Part confirmed for a part we did not initiate in
					// this select round; still a clean exit.
					return errGraceful
				}
				return err
			}
		}
	}
}

// deadlineExpired maps an expectation timeout to the state machine's
// failure policy for the current state.
func (c *Client) deadlineExpired() error {
	state := c.State()
	c.deadline = time.Time{}
	switch state {
	case StateAuthPending:
		return errAuthTimeout
	case StateCapPending:
		return ErrCapNegotiationFailed
	case StateJoinPending:
		c.clearPending()
		return errJoinTimeout
	case StatePartPending:
		// Not a failure: the connection is being torn down regardless.
		c.log.Warn("part confirmation not received before deadline; closing anyway")
		c.clearPending()
		return errGraceful
	default:
		return nil
	}
}

// handleMessage is the state machine's single dispatch point. Control
// messages drive transitions and presence; chat-class messages are
// forwarded to the handler.
func (c *Client) handleMessage(ctx context.Context, m *irc.Message, h Handler) error {
	switch m.Kind {
	case irc.KindPing:
		pong, err := irc.Pong(m.Body)
		if err != nil {
			return err
		}
		return c.writeLine(pong, "")

	case irc.KindReconnect:
		// Highest priority regardless of state: any pending action is
		// moot once the server terminates the session.
		c.clearPending()
		c.deadline = time.Time{}
		return errServerReconnect

	case irc.KindAuthAccepted:
		if c.State() != StateAuthPending {
			return nil // later welcome numerics of the same burst
		}
		capReq, err := irc.CapReq(c.caps)
		if err != nil {
			return err
		}
		if err := c.writeLine(capReq, ""); err != nil {
			return err
		}
		c.setState(StateCapPending)
		c.deadline = time.Now().Add(c.expect)
		return nil

	case irc.KindAuthRejected:
		// Retrying with the same invalid credential cannot succeed.
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, m.Body)

	case irc.KindCapAck:
		if c.State() != StateCapPending {
			return nil
		}
		c.log.Debug("capabilities acknowledged", slog.Any("caps", m.Caps))
		if err := c.beginJoin(); err != nil {
			return err
		}
		return nil

	case irc.KindJoin:
		if m.Channel != c.channel {
			return nil
		}
		if m.Sender == c.username && c.State() == StateJoinPending {
			c.clearPending()
			c.deadline = time.Time{}
			c.setState(StateJoined)
			c.sawJoin = true
			c.attempts.Store(0)
			c.log.Info("joined channel", slog.String("channel", c.channel))
			return c.flushOutbox()
		}
		c.tracker.HandleJoin(m.Sender)
		telemetry.SetUsersInChannel(c.tracker.UserCount())
		return nil

	case irc.KindPart:
		if m.Channel != c.channel {
			return nil
		}
		if m.Sender == c.username && c.State() == StatePartPending {
			c.clearPending()
			c.deadline = time.Time{}
			return errGraceful
		}
		c.tracker.HandlePart(m.Sender)
		telemetry.SetUsersInChannel(c.tracker.UserCount())
		return nil

	case irc.KindNamesChunk:
		if m.Channel == c.channel {
			c.tracker.HandleNamesChunk(m.Users)
		}
		return nil

	case irc.KindNamesEnd:
		if m.Channel == c.channel {
			c.tracker.HandleNamesEnd()
			telemetry.SetUsersInChannel(c.tracker.UserCount())
		}
		return nil

	case irc.KindRoomState:
		if m.Channel == c.channel {
			c.tracker.HandleRoomState(m.Tags)
		}
		return nil

	case irc.KindUserState, irc.KindGlobalUserState, irc.KindHostTarget:
		return nil

	case irc.KindPrivMsg:
		if m.Channel == c.channel {
			c.tracker.HandleMessage(m)
		}
		h.HandleMessage(ctx, m)
		return nil

	case irc.KindUnknown:
		telemetry.CountUnknownLine()
		c.log.Debug("unparsed chat line", slog.String("raw", m.Raw))
		return nil

	default:
		// Remaining chat-class kinds: notices, whispers, clears.
		if m.IsChat() {
			h.HandleMessage(ctx, m)
		}
		return nil
	}
}

// beginJoin issues the JOIN and records the pending action. Called only
// from the event loop while CapPending.
func (c *Client) beginJoin() error {
	if err := c.beginAction(actionJoin); err != nil {
		return err
	}
	join, err := irc.Join(c.channel)
	if err != nil {
		c.clearPending()
		return err
	}
	if err := c.writeLine(join, ""); err != nil {
		c.clearPending()
		return err
	}
	c.setState(StateJoinPending)
	return nil
}

// beginPart issues the PART and records the pending action. Called only
// from the event loop while Joined.
func (c *Client) beginPart() error {
	if err := c.beginAction(actionPart); err != nil {
		return err
	}
	part, err := irc.Part(c.channel)
	if err != nil {
		c.clearPending()
		return err
	}
	if err := c.writeLine(part, ""); err != nil {
		c.clearPending()
		return err
	}
	c.setState(StatePartPending)
	return nil
}

// beginAction enforces the single-pending-action invariant: the protocol
// has no correlation ids, so a second outstanding action would make
// confirmations ambiguous.
func (c *Client) beginAction(kind actionKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return fmt.Errorf("%w: %s", ErrActionPending, c.pending.kind)
	}
	now := time.Now()
	c.pending = &pendingAction{kind: kind, issuedAt: now, deadline: now.Add(c.expect)}
	c.deadline = c.pending.deadline
	return nil
}

func (c *Client) clearPending() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// PendingAction reports the kind of the outstanding action, or "" when
// none is pending.
func (c *Client) PendingAction() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ""
	}
	return c.pending.kind.String()
}

// Say sends a chat message to the target channel. While the connection is
// not yet joined (including during a reconnect handshake), the message is
// queued and flushed after the join confirmation so it can never overtake
// handshake traffic.
func (c *Client) Say(text string) error {
	out, err := irc.Privmsg(c.channel, text)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if State(c.state.Load()) == StateJoined && c.conn != nil {
		return c.writeLocked(out, "")
	}
	c.outbox = append(c.outbox, out)
	return nil
}

// SendRaw writes an already-serialized line immediately. The line must be
// CRLF-terminated and within the protocol's length limit.
func (c *Client) SendRaw(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	if len(line) > irc.MaxLineLen {
		return irc.ErrMessageTooLong
	}
	return c.writeLine(line, "")
}

// flushOutbox drains messages queued while the connection was not joined.
func (c *Client) flushOutbox() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.outbox) > 0 {
		out := c.outbox[0]
		if err := c.writeLocked(out, ""); err != nil {
			return err
		}
		c.outbox = c.outbox[1:]
	}
	return nil
}

func (c *Client) writeLine(line, redacted string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(line, redacted)
}

func (c *Client) writeLocked(line, redacted string) error {
	if c.conn == nil {
		return errors.New("client: not connected")
	}
	if redacted == "" {
		redacted = strings.TrimRight(line, "\r\n")
	}
	c.log.Debug("send", slog.String("line", redacted))
	if _, err := io.WriteString(c.conn, line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	telemetry.CountMessageSent()
	return nil
}

// Close hard-closes the client from any state, skipping the PART
// confirmation. Used for process-level shutdown.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
		c.setState(StateClosed)
	})
}

// teardown releases the transport and clears per-connection state.
// Presence learned on a dead connection is stale, so the tracker resets.
func (c *Client) teardown() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.pending = nil
	c.mu.Unlock()
	c.deadline = time.Time{}
	c.tracker.Reset()
	telemetry.SetUsersInChannel(0)
}

// readLoop scans CRLF-delimited lines into the buffered channel so a slow
// handler delays dispatch, not the socket read. It exits when the
// connection errors out or the owning runOnce returns.
func readLoop(conn io.Reader, lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	s := bufio.NewScanner(conn)
	s.Buffer(make([]byte, 0, 4096), 64*1024)
	for s.Scan() {
		l := strings.TrimSuffix(s.Text(), "\r")
		if l == "" {
			continue
		}
		select {
		case <-done:
			return
		case lines <- l:
		}
	}
	err := s.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case readErr <- err:
	default:
	}
}
