package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webchat-ai/webchat/internal/chat"
	"github.com/webchat-ai/webchat/internal/exitcode"
	"github.com/webchat-ai/webchat/internal/kv"
	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
	"github.com/webchat-ai/webchat/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the configured engine.

Examples:
  webchat chat
  webchat chat --engine local
  webchat chat --model gpt-4o

Slash commands:
  /help            - Show help
  /new             - Start a new conversation
  /sessions        - List conversations
  /switch <n>      - Switch to conversation n
  /delete <n>      - Delete conversation n
  /mode <name>     - Switch engine: local or remote
  /stop            - Stop the current response
  /quit            - Exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// streamPrinter renders assistant messages as they grow. Each session
// update either extends the message being printed or starts a new one.
type streamPrinter struct {
	mu      sync.Mutex
	styles  *ui.Styles
	lastID  string
	printed string
}

func (p *streamPrinter) onChange(sessions *session.Store) func() {
	return func() {
		current := sessions.CurrentSession()
		if len(current.Messages) == 0 {
			return
		}
		last := current.Messages[len(current.Messages)-1]
		if last.Role != llm.RoleAssistant || last.Content == "" {
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		if last.ID != p.lastID {
			p.lastID = last.ID
			p.printed = ""
			fmt.Print("\n" + p.styles.Assistant.Render("assistant") + " ")
		}
		if strings.HasPrefix(last.Content, p.printed) {
			fmt.Print(last.Content[len(p.printed):])
		} else {
			// Content was rewritten (quality notice); reprint it whole.
			fmt.Print("\n" + last.Content)
		}
		p.printed = last.Content
	}
}

// finish terminates the in-progress assistant line, if any.
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed != "" {
		fmt.Println()
	}
	p.lastID = ""
	p.printed = ""
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusMu := sync.Mutex{}
	styles := ui.DefaultStyles()
	status := func(text string) {
		statusMu.Lock()
		defer statusMu.Unlock()
		fmt.Println(styles.Status.Render(text))
	}

	a, err := newApp(ctx, status)
	if err != nil {
		return err
	}
	defer a.Close()
	styles = a.styles

	// Local mode warms the engine immediately; the model download runs
	// while the user types. An exit mid-download marks it paused so the
	// next run can pick it back up.
	if a.orch.Mode() == chat.ModeLocal {
		a.local.StartInit(ctx)
	}
	defer a.pauseDownloadIfInitializing(context.Background())

	printer := &streamPrinter{styles: a.styles}
	a.sessions.OnChange(printer.onChange(a.sessions))

	current := a.sessions.CurrentSession()
	fmt.Printf("%s %s\n", a.styles.Bold.Render("webchat"), a.styles.Muted.Render("("+string(a.orch.Mode())+" engine)"))
	fmt.Println(a.styles.Muted.Render("Type /help for commands."))
	printHistory(a, current)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n" + a.styles.Prompt.Render("you") + " ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, a, line); quit {
				return nil
			}
			continue
		}

		if !a.orch.CanSend() {
			fmt.Println(a.styles.Status.Render("Still working on the previous message..."))
			continue
		}
		if err := a.orch.Send(ctx, line); err != nil {
			fmt.Println(a.styles.Error.Render("error: " + err.Error()))
		}
		printer.finish()
	}

	if ctx.Err() != nil {
		return exitcode.Cancel()
	}
	return scanner.Err()
}

// printHistory replays an existing conversation when resuming a session.
func printHistory(a *app, current session.Session) {
	for _, m := range current.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			fmt.Printf("\n%s %s\n", a.styles.Assistant.Render("assistant"), m.Content)
		case llm.RoleUser:
			fmt.Printf("\n%s %s\n", a.styles.Prompt.Render("you"), m.Content)
		}
	}
}

// handleCommand runs one slash command. It returns true when the REPL
// should exit.
func handleCommand(ctx context.Context, a *app, line string) bool {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(a.styles.Muted.Render(strings.TrimSpace(`
/new             start a new conversation
/sessions        list conversations
/switch <n>      switch to conversation n
/delete <n>      delete conversation n
/mode <name>     switch engine: local or remote
/stop            stop the current response
/quit            exit`)))

	case "/new":
		created := a.sessions.CreateSession(ctx)
		fmt.Println(a.styles.Status.Render("started " + created.Title))

	case "/sessions":
		listSessions(a)

	case "/switch":
		if target, ok := sessionByIndex(a, args); ok {
			a.sessions.SwitchSession(ctx, target.ID)
			fmt.Println(a.styles.Status.Render("switched to " + target.Title))
			printHistory(a, a.sessions.CurrentSession())
		}

	case "/delete":
		if target, ok := sessionByIndex(a, args); ok {
			a.sessions.DeleteSession(ctx, target.ID)
			fmt.Println(a.styles.Status.Render("deleted " + target.Title))
		}

	case "/mode":
		if len(args) != 1 {
			fmt.Println(a.styles.Error.Render("usage: /mode local|remote"))
			break
		}
		mode, err := chat.ParseMode(args[0])
		if err != nil {
			fmt.Println(a.styles.Error.Render(err.Error()))
			break
		}
		a.orch.SetMode(mode)
		if err := a.store.Set(ctx, kv.KeyEngineMode, string(mode)); err != nil {
			a.logger.Warn("persisting engine mode failed")
		}
		fmt.Println(a.styles.Status.Render("engine mode: " + string(mode)))
		if mode == chat.ModeLocal {
			a.local.StartInit(ctx)
		}

	case "/stop":
		a.orch.Stop()
		if a.pauseDownloadIfInitializing(ctx) {
			fmt.Println(a.styles.Status.Render("model download paused"))
			break
		}
		fmt.Println(a.styles.Status.Render("stopped"))

	default:
		fmt.Println(a.styles.Error.Render("unknown command " + command + ", try /help"))
	}
	return false
}

func listSessions(a *app) {
	sessions := a.sessions.Sessions()
	currentID := a.sessions.CurrentID()
	for i, s := range sessions {
		marker := " "
		if s.ID == currentID {
			marker = "*"
		}
		fmt.Printf("%s %2d  %s  %s\n", marker, i+1,
			a.styles.Bold.Render(ui.Truncate(s.Title, 40)),
			a.styles.Muted.Render(s.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

// sessionByIndex resolves a 1-based session index argument.
func sessionByIndex(a *app, args []string) (session.Session, bool) {
	if len(args) != 1 {
		fmt.Println(a.styles.Error.Render("expected a session number, see /sessions"))
		return session.Session{}, false
	}
	n, err := strconv.Atoi(args[0])
	sessions := a.sessions.Sessions()
	if err != nil || n < 1 || n > len(sessions) {
		fmt.Println(a.styles.Error.Render("no such session " + args[0]))
		return session.Session{}, false
	}
	return sessions[n-1], true
}
