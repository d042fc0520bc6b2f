package service

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/model"
	"github.com/marwld/minibot/internal/transport"
)

// commandFailedReply is sent to the chat when a handler returns an error.
const commandFailedReply = "An error occurred while processing your command. Please try again."

// Command is the parsed invocation handed to a handler.
type Command struct {
	Session *Session
	Chat    string
	Args    []string
}

// Handler executes one bot command.
type Handler func(ctx context.Context, cmd Command) error

// Dispatcher parses prefixed messages and routes them to command handlers.
// Unknown commands are ignored; handler errors are isolated per message.
type Dispatcher struct {
	log      *zap.Logger
	handlers map[string]Handler
}

// NewDispatcher builds a dispatcher with the builtin command set.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	d := &Dispatcher{log: log, handlers: make(map[string]Handler)}
	d.Register("alive", cmdAlive)
	d.Register("menu", cmdMenu)
	d.Register("help", cmdMenu)
	d.Register("ping", cmdPing)
	d.Register("system", cmdSystem)
	d.Register("jid", cmdJID)
	d.Register("owner", cmdOwner)
	d.Register("boom", cmdBoom)
	return d
}

// Register binds a command name to a handler. Names are matched lowercased.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[strings.ToLower(name)] = h
}

// Parse extracts the command name and arguments from a message body. A button
// selection carries its command in ButtonID and takes precedence over text.
func Parse(prefix string, msg transport.Message) (string, []string, bool) {
	body := msg.Text
	if msg.ButtonID != "" {
		body = msg.ButtonID
	}
	body = strings.TrimSpace(body)
	if body == "" || !strings.HasPrefix(body, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(body[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Handle routes one inbound message. One message's failure only produces a
// generic error reply in its own chat; the event loop keeps running.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, msg transport.Message, settings model.Settings) {
	name, args, ok := Parse(settings.Prefix(), msg)
	if !ok {
		return
	}
	h, ok := d.handlers[name]
	if !ok {
		return
	}
	d.log.Debug("dispatching command",
		zap.String("identity", sess.Identity()),
		zap.String("command", name))
	if err := h(ctx, Command{Session: sess, Chat: msg.Chat, Args: args}); err != nil {
		d.log.Error("command failed",
			zap.String("identity", sess.Identity()),
			zap.String("command", name),
			zap.Error(err))
		if _, serr := sess.Client().SendText(ctx, msg.Chat, commandFailedReply); serr != nil {
			d.log.Debug("error reply failed", zap.Error(serr))
		}
	}
}

func cmdAlive(ctx context.Context, cmd Command) error {
	text := fmt.Sprintf("🤖 I'm alive!\n\nUptime: %s", formatUptime(time.Since(cmd.Session.CreatedAt())))
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat, text)
	return err
}

func cmdMenu(ctx context.Context, cmd Command) error {
	p := cmd.Session.Settings().Prefix()
	var b strings.Builder
	b.WriteString("📋 *Menu*\n\n")
	for _, c := range []string{"alive", "menu", "ping", "system", "jid", "owner", "boom"} {
		b.WriteString("• " + p + c + "\n")
	}
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat, b.String())
	return err
}

func cmdPing(ctx context.Context, cmd Command) error {
	start := time.Now()
	if _, err := cmd.Session.Client().SendText(ctx, cmd.Chat, "Pinging..."); err != nil {
		return err
	}
	elapsed := time.Since(start)
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat,
		fmt.Sprintf("🏓 Pong! %d ms", elapsed.Milliseconds()))
	return err
}

func cmdSystem(ctx context.Context, cmd Command) error {
	text := fmt.Sprintf("💻 *System*\n\nPlatform: %s/%s\nCPUs: %d\nGoroutines: %d\nUptime: %s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.NumGoroutine(),
		formatUptime(time.Since(cmd.Session.CreatedAt())))
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat, text)
	return err
}

func cmdJID(ctx context.Context, cmd Command) error {
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat, cmd.Chat)
	return err
}

const (
	boomMaxCount = 500
	boomDelay    = 500 * time.Millisecond
)

// cmdBoom repeats a message count times with a fixed delay between sends.
func cmdBoom(ctx context.Context, cmd Command) error {
	p := cmd.Session.Settings().Prefix()
	if len(cmd.Args) < 2 {
		_, err := cmd.Session.Client().SendText(ctx, cmd.Chat,
			fmt.Sprintf("📛 Usage: %sboom <count> <message>", p))
		return err
	}
	count, err := strconv.Atoi(cmd.Args[0])
	if err != nil || count <= 0 || count > boomMaxCount {
		_, err := cmd.Session.Client().SendText(ctx, cmd.Chat,
			fmt.Sprintf("❗ Please provide a valid count between 1 and %d.", boomMaxCount))
		return err
	}
	text := strings.Join(cmd.Args[1:], " ")
	for i := 0; i < count; i++ {
		if i > 0 {
			sleep(ctx, boomDelay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if _, err := cmd.Session.Client().SendText(ctx, cmd.Chat, text); err != nil {
			return err
		}
	}
	return nil
}

func cmdOwner(ctx context.Context, cmd Command) error {
	text := "👤 Owner: " + cmd.Session.Client().SelfAddress()
	_, err := cmd.Session.Client().SendText(ctx, cmd.Chat, text)
	return err
}

// formatUptime renders a duration as "1h 2m 3s".
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := d - m*time.Minute
	return fmt.Sprintf("%dh %dm %ds", h, m, s/time.Second)
}
