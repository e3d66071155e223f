package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vaultmind/chat-client/internal/chat"
	"github.com/vaultmind/chat-client/internal/config"
	"github.com/vaultmind/chat-client/internal/model"
	"github.com/vaultmind/chat-client/pkg/logger"
)

// replCmd chats from the terminal
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Chat from the terminal",
	Long: `Read queries from standard input and print the assistant replies.

Commands:
  /new                   start a new conversation
  /sessions              reload and list past conversations
  /open <id>             continue a past conversation
  /login <email> <pass>  log in with a password
  /quit                  exit`,
	RunE: runREPL,
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, "repl", cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	r := &repl{
		ws:    a.workspace,
		login: a.backend.Login,
		out:   &syncWriter{w: cmd.OutOrStdout()},
	}
	return r.run(ctx, cmd.InOrStdin())
}

type replWorkspace interface {
	Active() *chat.Conversation
	NewChat() *chat.Conversation
	Open(ctx context.Context, id model.ServerID) (*chat.Conversation, error)
	Submit(ctx context.Context, query string) (*chat.Exchange, error)
	Sessions() []model.SessionSummary
	Refresh(ctx context.Context) error
	Subscribe() (<-chan chat.Update, func())
}

type repl struct {
	ws    replWorkspace
	login func(ctx context.Context, email, password string) error
	out   io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	updates, unsubscribe := r.ws.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		r.printStatus(updates)
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	fmt.Fprintln(r.out, "vaultchat ready. Type /quit to exit.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		r.ask(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		r.ws.NewChat()
		fmt.Fprintln(r.out, "new conversation")

	case "/sessions":
		if err := r.ws.Refresh(ctx); err != nil {
			return false, err
		}
		sessions := r.ws.Sessions()
		if len(sessions) == 0 {
			fmt.Fprintln(r.out, "no past conversations")
		}
		for _, s := range sessions {
			fmt.Fprintf(r.out, "  %-6s %-40s %s\n", s.ID, s.Title, s.Date)
		}

	case "/open":
		if len(fields) != 2 {
			return false, errors.New("usage: /open <id>")
		}
		conv, err := r.ws.Open(ctx, model.ServerID(fields[1]))
		if err != nil {
			return false, err
		}
		for _, m := range conv.Log().Snapshot() {
			r.printMessage(m)
		}

	case "/login":
		if len(fields) != 3 {
			return false, errors.New("usage: /login <email> <password>")
		}
		if err := r.login(ctx, fields[1], fields[2]); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "logged in")

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func (r *repl) ask(ctx context.Context, query string) {
	conv := r.ws.Active()
	ex, err := r.ws.Submit(ctx, query)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}

	after := false
	for _, m := range conv.Log().Snapshot() {
		if m.ID == ex.UserID {
			after = true
			continue
		}
		if after && m.Role == model.RoleAssistant {
			r.printMessage(m)
		}
	}
}

func (r *repl) printMessage(m model.Message) {
	var b strings.Builder
	switch m.Role {
	case model.RoleUser:
		fmt.Fprintf(&b, "you> %s\n", m.Text)
	default:
		for _, step := range m.Steps {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
		fmt.Fprintf(&b, "assistant> %s\n", m.Text)
	}
	io.WriteString(r.out, b.String())
}

// printStatus shows progress of the pending reply in the active conversation.
func (r *repl) printStatus(updates <-chan chat.Update) {
	last := ""
	for u := range updates {
		if u.Kind != chat.UpdateMessage {
			continue
		}
		if !u.Message.Pending() {
			last = ""
			continue
		}
		if u.ConversationKey != r.ws.Active().Key() || u.Message.Status == last {
			continue
		}
		last = u.Message.Status
		fmt.Fprintf(r.out, "  ... %s\n", last)
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
