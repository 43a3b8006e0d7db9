package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harunnryd/avatarchat/pkg/avatar"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/phase"
	"github.com/harunnryd/avatarchat/pkg/transports"
)

const consoleHelp = `Type to speak while the avatar is listening.
Commands: /start /end /pause /resume /toggle /quit`

func newConsoleCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Chat with the avatar from the terminal",
		Long:  consoleHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cfg.Speech = avatar.SpeechConfig{Provider: "textinput"}
			cfg.Transport = avatar.VendorConfig{Provider: avatar.TransportNone}
			cfg.Observability.Metrics = false
			cfg.Lifecycle.Banner = false
			logger := logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			providers := avatar.NewProviderRegistry()
			registerProviders(providers)
			out := &statusPrinter{w: cmd.OutOrStdout()}
			engine, err := avatar.NewEngine(avatar.EngineOptions{
				Config:    cfg,
				Providers: providers,
				Logger:    logger,
				Listeners: []conversation.Listener{out},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			out.println(consoleHelp)
			go func() {
				readConsole(cmd.InOrStdin(), engine, out)
				cancel()
			}()
			return engine.Run(ctx)
		},
	}
}

// readConsole feeds stdin lines to the engine until EOF or /quit.
func readConsole(in io.Reader, engine *avatar.Engine, out *statusPrinter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		cmd, ok := parseConsoleLine(line)
		if !ok {
			out.println("unknown command " + line)
			continue
		}
		if !engine.HandleCommand(cmd) && cmd.Type == transports.CommandSay {
			out.println("(not listening)")
		}
	}
}

func parseConsoleLine(line string) (transports.Command, bool) {
	if !strings.HasPrefix(line, "/") {
		return transports.Command{Type: transports.CommandSay, Text: line}, true
	}
	switch strings.ToLower(line) {
	case "/start":
		return transports.Command{Type: transports.CommandStart}, true
	case "/end":
		return transports.Command{Type: transports.CommandEnd}, true
	case "/pause":
		return transports.Command{Type: transports.CommandPause}, true
	case "/resume":
		return transports.Command{Type: transports.CommandResume}, true
	case "/toggle":
		return transports.Command{Type: transports.CommandTogglePause}, true
	default:
		return transports.Command{}, false
	}
}

// statusPrinter renders notifications as status lines.
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *statusPrinter) OnNotification(n conversation.Notification) {
	switch v := n.(type) {
	case conversation.PhaseChanged:
		p.println(fmt.Sprintf("[%s] %s", phase.DirectiveFor(v.To).Clip, phase.StatusText(v.To)))
	case conversation.TextRecognized:
		p.println(fmt.Sprintf("heard %q (%s)", v.Text, v.Kind))
	case conversation.PermissionRequired:
		p.println("speech recognition is unavailable; the avatar will only prompt")
	case conversation.SuspensionChanged:
		switch {
		case v.Held && v.ByUser:
			p.println("paused")
		case v.Held:
			p.println("on hold")
		default:
			p.println("resumed")
		}
	}
}

func (p *statusPrinter) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
