package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onnwee/twitchbot/channel"
	"github.com/onnwee/twitchbot/irc"
	"github.com/onnwee/twitchbot/twitchapi"
)

// NoCooldown disables a window for a single command regardless of the
// store defaults.
const NoCooldown time.Duration = -1

// Runner produces the command's reply. An empty string means no reply.
type Runner func(ctx context.Context, api *twitchapi.Client, ch *channel.Channel, m *irc.Message) (string, error)

// Command pairs a trigger with its runner. Cooldown fields of zero use the
// store defaults; NoCooldown disables the window for this command.
type Command struct {
	Name           string
	Trigger        Trigger
	Run            Runner
	UserCooldown   time.Duration
	GlobalCooldown time.Duration
}

// Registry holds commands in registration order. Find returns the first
// command whose trigger matches, so more specific commands belong first.
type Registry struct {
	mu       sync.RWMutex
	commands []*Command
}

func NewRegistry() *Registry { return &Registry{} }

// Add appends cmd to the registry. Order is significant.
func (r *Registry) Add(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

// AddFunc is a convenience for Add with default cooldowns.
func (r *Registry) AddFunc(name string, trigger Trigger, run Runner) {
	r.Add(&Command{Name: name, Trigger: trigger, Run: run})
}

// Find returns the first command whose trigger matches m, or nil.
func (r *Registry) Find(m *irc.Message, ch *channel.Channel) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cmd := range r.commands {
		if cmd.Trigger != nil && cmd.Trigger.Check(m, ch) {
			return cmd
		}
	}
	return nil
}

// All returns every command whose trigger matches m, in registration order.
func (r *Registry) All(m *irc.Message, ch *channel.Channel) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Command
	for _, cmd := range r.commands {
		if cmd.Trigger != nil && cmd.Trigger.Check(m, ch) {
			out = append(out, cmd)
		}
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Run executes cmd after checking the cooldown store. A rejected invocation
// returns ErrOnCooldown without calling the runner; the cooldown clock is
// only advanced when the runner returns without error.
func (r *Registry) Run(ctx context.Context, cmd *Command, store *CooldownStore, api *twitchapi.Client, ch *channel.Channel, m *irc.Message) (string, error) {
	userID := ""
	if m.Tags != nil {
		userID = m.Tags.User().UserID
	}
	if rem, ok := store.Ready(cmd.Name, userID, effectiveWindow(cmd.UserCooldown), effectiveWindow(cmd.GlobalCooldown)); !ok {
		return "", fmt.Errorf("%s: %w (retry in %s)", cmd.Name, ErrOnCooldown, rem.Round(time.Millisecond))
	}
	reply, err := cmd.Run(ctx, api, ch, m)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd.Name, err)
	}
	store.Mark(cmd.Name, userID)
	return reply, nil
}

// effectiveWindow maps the Command convention (0 = store default,
// NoCooldown = disabled) onto the store convention (negative = default,
// 0 = disabled).
func effectiveWindow(override time.Duration) time.Duration {
	switch {
	case override == 0:
		return -1
	case override == NoCooldown:
		return 0
	default:
		return override
	}
}
