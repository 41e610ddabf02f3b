package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/messenger-wemo/internal/device"
	"github.com/mattjoyce/messenger-wemo/internal/events"
	"github.com/mattjoyce/messenger-wemo/internal/log"
	"github.com/mattjoyce/messenger-wemo/internal/messenger"
)

// Fixed replies.
const (
	ReplyOptIn      = "Authentication successful"
	ReplyPostback   = "Postback called"
	ReplyQuickReply = "Quick reply tapped"
	ReplyAttachment = "Message with attachment received"
)

// Command binds a keyword to the device label it toggles.
type Command struct {
	Keyword string
	Label   string
	// Reply confirms a successful toggle.
	Reply string
}

// DefaultCommands is the built-in vocabulary.
var DefaultCommands = []Command{
	{Keyword: "lamp", Label: "lamp", Reply: "Switching lamp."},
}

// Router interprets message content against the command table.
type Router struct {
	commands map[string]Command
	toggler  Toggler
	replies  replier
	logger   *slog.Logger
}

// NewRouter builds a Router. Keywords are matched case-insensitively after
// trimming whitespace; a later duplicate keyword replaces an earlier one.
func NewRouter(commands []Command, toggler Toggler, notifier Notifier, pub events.Publisher, logger *slog.Logger) *Router {
	table := make(map[string]Command, len(commands))
	for _, c := range commands {
		table[normalize(c.Keyword)] = c
	}
	return &Router{
		commands: table,
		toggler:  toggler,
		replies:  newReplier(notifier, pub, logger),
		logger:   logger,
	}
}

// Match looks text up in the command table.
func (r *Router) Match(text string) (Command, bool) {
	c, ok := r.commands[normalize(text)]
	return c, ok
}

// HandleMessage answers one message event. Reply and toggle failures are
// returned for logging; the user has already been told what they need to know.
func (r *Router) HandleMessage(ctx context.Context, ev messenger.MessageEvent) error {
	msg := ev.Message
	sender := ev.SenderID

	if msg.IsEcho {
		r.logger.Debug("echo message ignored",
			"mid", msg.MID,
			"app_id", msg.AppID,
			"metadata", msg.Metadata,
		)
		return nil
	}

	switch c := msg.Content.(type) {
	case messenger.QuickReplyContent:
		r.logger.Info("quick reply received", log.Sender(sender), "mid", msg.MID, "payload", c.Payload)
		return r.replies.send(ctx, sender, ReplyQuickReply)

	case messenger.TextContent:
		r.logger.Debug("text message received", log.Sender(sender), "mid", msg.MID, "text", c.Text)
		if cmd, ok := r.Match(c.Text); ok {
			return r.runCommand(ctx, sender, cmd)
		}
		return r.replies.send(ctx, sender, c.Text)

	case messenger.AttachmentContent:
		r.logger.Info("attachment message received", log.Sender(sender), "mid", msg.MID, "attachments", len(c.Attachments))
		return r.replies.send(ctx, sender, ReplyAttachment)

	case messenger.NoContent, nil:
		r.logger.Warn("message without content ignored", log.Sender(sender), "mid", msg.MID)
		return nil

	default:
		return fmt.Errorf("unhandled message content %T", c)
	}
}

// runCommand toggles the command's device, then confirms or explains.
func (r *Router) runCommand(ctx context.Context, sender string, cmd Command) error {
	state, err := r.toggler.Toggle(ctx, cmd.Label)
	if err != nil {
		r.logger.Warn("device command failed",
			log.Sender(sender),
			log.Device(cmd.Label),
			"error", err,
		)
		replyErr := r.replies.send(ctx, sender, failureReply(cmd.Label, err))
		return errors.Join(fmt.Errorf("toggle %q: %w", cmd.Label, err), replyErr)
	}

	r.logger.Info("device command succeeded", log.Sender(sender), log.Device(cmd.Label), "state", state.String())
	return r.replies.send(ctx, sender, cmd.Reply)
}

// failureReply tells the user what happened without internal detail.
func failureReply(label string, err error) string {
	var commErr *device.CommunicationError
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Sprintf("Sorry, I can't find the %s right now.", label)
	case errors.As(err, &commErr) && commErr.StateAmbiguous():
		return fmt.Sprintf("Sorry, the %s may not have switched. Please check it before trying again.", label)
	default:
		return fmt.Sprintf("Sorry, I couldn't reach the %s. Please try again.", label)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// replier sends replies and mirrors the outcome onto the event hub.
type replier struct {
	notifier Notifier
	events   events.Publisher
	logger   *slog.Logger
}

func newReplier(notifier Notifier, pub events.Publisher, logger *slog.Logger) replier {
	if pub == nil {
		pub = events.Discard
	}
	return replier{notifier: notifier, events: pub, logger: logger}
}

func (r replier) send(ctx context.Context, recipientID, text string) error {
	err := r.notifier.SendText(ctx, recipientID, text)
	r.events.Publish(events.TypeMessengerReply, map[string]any{
		"recipient_id": recipientID,
		"ok":           err == nil,
	})
	if err != nil {
		return fmt.Errorf("reply to %s: %w", recipientID, err)
	}
	return nil
}
