// ABOUTME: Entry point for the coven-chat terminal client.
// ABOUTME: Attaches to a gateway session, streams the conversation, survives disconnects.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-client/internal/backoff"
	"github.com/2389/coven-client/internal/config"
	"github.com/2389/coven-client/internal/history"
	"github.com/2389/coven-client/internal/msglog"
	"github.com/2389/coven-client/internal/readiness"
	"github.com/2389/coven-client/internal/session"
	"github.com/2389/coven-client/internal/transcript"
)

const banner = `
    ╭───────────────────────────────╮
    │   ┏━╸┏━┓╻ ╻┏━╸┏┓╻   ┏━╸╻ ╻   │
    │   ┃  ┃ ┃┃┏┛┣╸ ┃┗┫   ┃  ┣━┫   │
    │   ┗━╸┗━┛┗┛ ┗━╸╹ ╹   ┗━╸╹ ╹   │
    │         coven-chat            │
    ╰───────────────────────────────╯
`

// getConfigPath returns the path to the client config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	var sink session.TranscriptSink
	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path, logger)
		if err != nil {
			return fmt.Errorf("opening transcript cache: %w", err)
		}
		defer store.Close()
		sink = store
	}

	httpURL := cfg.Gateway.HTTPURL
	if httpURL == "" {
		httpURL = wsToHTTP(cfg.Gateway.URL)
	}

	ui := newChatPrinter()

	mgr := session.NewManager(session.Config{
		GatewayURL: cfg.Gateway.URL,
		SessionKey: cfg.Gateway.SessionKey,
		Token:      cfg.Gateway.Token,
		Backoff: backoff.Config{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		},
		Transcript: sink,
	}, session.Handlers{}, logger)
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := readiness.NewPoller(httpURL, cfg.Gateway.Token, logger,
		readinessOptions(cfg.Readiness)...)

	// The handler set closes over the manager for the not-ready recovery
	// path, so it is attached after construction.
	mgr.SetHandlers(session.Handlers{
		OnConnected: func(reconnected bool, replayed int) {
			if reconnected {
				ui.status("reconnected (%d events replayed)", replayed)
			} else {
				ui.status("connected to %s", cfg.Gateway.SessionKey)
			}
		},
		OnNotReady: func() {
			ui.status("engine is provisioning, waiting for it to come up...")
			go func() {
				if err := poller.WaitReady(ctx, cfg.Gateway.SessionKey); err != nil {
					ui.errorf("engine never became ready: %v", err)
					return
				}
				if err := mgr.Connect(ctx); err != nil {
					ui.errorf("reconnect after readiness failed: %v", err)
				}
			}()
		},
		OnConnectionFailed: func(err error) {
			ui.errorf("connection lost for good: %v (restart coven-chat to retry)", err)
		},
		OnStreamingActive: func() {
			ui.status("assistant is mid-turn, output will resume...")
		},
		OnLogChanged: func() {
			ui.render(mgr.Log().Entries())
		},
		OnTurnComplete: func() {
			ui.turnDone()
		},
	})

	// Seed durable history before opening the live socket.
	hist := history.NewClient(httpURL, cfg.Gateway.Token)
	entries, err := hist.Fetch(ctx, cfg.Gateway.SessionKey)
	if err != nil {
		logger.Warn("history fetch failed, starting with an empty log", "error", err)
	} else {
		mgr.SeedHistory(entries)
	}

	// Processing indicator shared by every view of this session.
	procCh, _ := mgr.Processing().Subscribe(ctx, cfg.Gateway.SessionKey)
	go func() {
		for state := range procCh {
			ui.processing(state.Active, state.Message)
		}
	}()

	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	return inputLoop(ctx, mgr, ui)
}

// inputLoop reads user turns from stdin until EOF or interrupt.
func inputLoop(ctx context.Context, mgr *session.Manager, ui *chatPrinter) error {
	scanner := bufio.NewScanner(os.Stdin)
	ui.prompt()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return nil
			case line == "/abort":
				if err := mgr.SendAbort(ctx); err != nil {
					ui.errorf("abort failed: %v", err)
				}
			default:
				if err := mgr.SendMessage(ctx, line, session.SendOptions{}); err != nil {
					ui.errorf("send failed: %v", err)
				}
			}
			ui.prompt()
		}
	}
}

// wsToHTTP derives the HTTP base URL from the WebSocket one.
func wsToHTTP(url string) string {
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	default:
		return url
	}
}

// readinessOptions maps config overrides onto poller options.
func readinessOptions(cfg config.ReadinessConfig) []readiness.Option {
	var opts []readiness.Option
	if cfg.Interval > 0 {
		opts = append(opts, readiness.WithInterval(cfg.Interval))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, readiness.WithTimeout(cfg.Timeout))
	}
	return opts
}

// setupLogger builds the slog logger from config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// chatPrinter renders the conversation to the terminal.
type chatPrinter struct {
	user      *color.Color
	assistant *color.Color
	tool      *color.Color
	system    *color.Color
	dim       *color.Color
	rendered  map[string]int // entry id -> content length already printed
}

func newChatPrinter() *chatPrinter {
	return &chatPrinter{
		user:      color.New(color.FgGreen, color.Bold),
		assistant: color.New(color.FgWhite),
		tool:      color.New(color.FgYellow),
		system:    color.New(color.FgRed),
		dim:       color.New(color.Faint),
		rendered:  make(map[string]int),
	}
}

// render prints whatever grew since the last call. Streaming entries print
// only their new suffix so the output grows in place.
func (p *chatPrinter) render(entries []msglog.Entry) {
	for _, e := range entries {
		printed := p.rendered[e.ID]
		if printed >= len(e.Content) && e.Kind != msglog.KindToolUse {
			continue
		}

		switch e.Kind {
		case msglog.KindToolUse:
			if printed == 0 {
				p.tool.Printf("\n[tool] %s %s\n", e.ToolName, e.ToolInput)
				p.rendered[e.ID] = 1
			}
		case msglog.KindError:
			p.system.Printf("\n[error] %s\n", e.Content[printed:])
			p.rendered[e.ID] = len(e.Content)
		case msglog.KindSystem:
			p.dim.Printf("\n[%s]\n", e.Content[printed:])
			p.rendered[e.ID] = len(e.Content)
		default:
			c := p.assistant
			if e.Role == "user" {
				c = p.user
			}
			if printed == 0 {
				c.Printf("\n%s: ", e.Role)
			}
			c.Print(e.Content[printed:])
			p.rendered[e.ID] = len(e.Content)
		}
	}
}

func (p *chatPrinter) status(format string, args ...any) {
	p.dim.Printf("\n· "+format+"\n", args...)
}

func (p *chatPrinter) errorf(format string, args ...any) {
	p.system.Printf("\n! "+format+"\n", args...)
}

func (p *chatPrinter) processing(active bool, message string) {
	if active {
		if message == "" {
			message = "agent is working"
		}
		p.dim.Printf("\n… %s\n", message)
	}
}

func (p *chatPrinter) turnDone() {
	fmt.Println()
}

func (p *chatPrinter) prompt() {
	p.user.Print("> ")
}
