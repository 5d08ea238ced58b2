// Package bot routes parsed chat messages into the command registry and
// sends replies back through the connection.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/twitchbot/channel"
	"github.com/onnwee/twitchbot/commands"
	"github.com/onnwee/twitchbot/irc"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/twitchapi"
)

// Sender delivers a reply to the channel. *client.Client satisfies it.
type Sender interface {
	Say(text string) error
}

// Bot matches incoming chat messages against a command registry and sends
// the first matching command's reply. Handler errors and panics are
// contained here so a misbehaving command never tears down the connection.
type Bot struct {
	registry  *commands.Registry
	cooldowns *commands.CooldownStore
	api       *twitchapi.Client
	tracker   *channel.Channel
	sender    Sender
	log       *slog.Logger
}

// Options configures a Bot. Registry and Sender are required; the rest may
// be nil (API-backed commands then receive a nil client).
type Options struct {
	Registry  *commands.Registry
	Cooldowns *commands.CooldownStore
	API       *twitchapi.Client
	Tracker   *channel.Channel
	Sender    Sender
	Logger    *slog.Logger
}

func New(opts Options) *Bot {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		registry:  opts.Registry,
		cooldowns: opts.Cooldowns,
		api:       opts.API,
		tracker:   opts.Tracker,
		sender:    opts.Sender,
		log:       log,
	}
}

// HandleMessage implements client.Handler. Only user-authored PRIVMSG lines
// can trigger commands; other chat-class messages pass through untouched.
func (b *Bot) HandleMessage(ctx context.Context, m *irc.Message) {
	if m == nil || m.Kind != irc.KindPrivMsg || b.registry == nil {
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("sender", m.Sender),
		slog.String("channel", m.Channel),
	)
	if id := m.Tags.Message().ID; id != "" {
		log = log.With(slog.String("msg_id", id))
	}

	cmd := b.registry.Find(m, b.tracker)
	if cmd == nil {
		return
	}
	log = log.With(slog.String("command", cmd.Name))

	ctx, span := telemetry.StartSpan(ctx, "bot", "command.run",
		attribute.String("command", cmd.Name),
		attribute.String("sender", m.Sender),
	)
	defer span.End()

	var reply string
	var err error
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		reply, err = b.runContained(ctx, cmd, m)
	})

	switch {
	case errors.Is(err, commands.ErrOnCooldown):
		telemetry.CountCooldownRejected()
		log.Debug("command on cooldown", slog.Any("err", err))
		return
	case err != nil:
		telemetry.CountCommandError()
		telemetry.RecordError(span, err)
		log.Error("command failed", slog.Any("err", err))
		return
	}

	telemetry.CountCommand()
	if reply == "" {
		return
	}
	if b.sender == nil {
		log.Warn("no sender configured, dropping reply")
		return
	}
	if err := b.sender.Say(reply); err != nil {
		telemetry.CountCommandError()
		log.Error("send reply", slog.Any("err", err))
		return
	}
	log.Info("command handled", slog.Int("reply_len", len(reply)))
}

// runContained executes the command, converting a panic in the runner into
// an ordinary error.
func (b *Bot) runContained(ctx context.Context, cmd *commands.Command, m *irc.Message) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", cmd.Name, r)
		}
	}()
	return b.registry.Run(ctx, cmd, b.cooldowns, b.api, b.tracker, m)
}
