package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/agentbridge/internal/config"
	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/imagecatalog"
)

// newProvider builds the model backend for chat.
var newProvider = agent.NewProvider

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Long: `Start an interactive chat session driving the agent runner.
Each line is sent as a user message. Commands:
  /state  print the shared state as JSON
  /reset  start a new conversation
  /quit   exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	runner, err := newChatRunner(cfg, log.Component("chat"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return chatLoop(ctx, runner, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
}

func newChatRunner(cfg *config.Config, logger zerolog.Logger) (*agent.Runner, error) {
	provider, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	catalog := imagecatalog.Default()
	if cfg.Agent.ImageDir != "" {
		names, err := imagecatalog.LoadDir(cfg.Agent.ImageDir)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			catalog.Replace(names)
		}
	}

	routerCfg := agent.RouterConfigFrom(cfg)
	routerCfg.Provider = provider
	routerCfg.Catalog = catalog
	routerCfg.Logger = logger
	router, err := agent.NewRouter(routerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return agent.NewRunner(agent.Config{
		Router:   router,
		MaxTurns: cfg.Agent.MaxTurns,
		Logger:   logger,
	})
}

func newChatState(cfg *config.Config) *agent.AgentState {
	return &agent.AgentState{Proverbs: append([]string(nil), cfg.Agent.Proverbs...)}
}

// chatLoop reads user lines from in until EOF or /quit, running the agent
// after each one. Run errors are printed and the session continues.
func chatLoop(ctx context.Context, runner *agent.Runner, cfg *config.Config, in io.Reader, out io.Writer) error {
	state := newChatState(cfg)
	threadID := tracing.NewThreadID()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprintln(out, "agentbridge chat. Type /quit to exit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			state = newChatState(cfg)
			threadID = tracing.NewThreadID()
			fmt.Fprintln(out, "Conversation reset.")
			continue
		case "/state":
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode state: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		state.Messages = append(state.Messages, agent.Message{
			Role:    agent.RoleUser,
			Content: line,
		})

		printer := &chatPrinter{out: out}
		result, err := runner.WithSink(printer).Run(tracing.WithThreadID(ctx, threadID), state)
		printer.finish(state)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if result.Err != nil {
			fmt.Fprintf(out, "warning: %v\n", result.Err)
		}
	}
}

// chatPrinter streams text deltas and tool activity to the terminal.
type chatPrinter struct {
	out     io.Writer
	printed bool
}

func (p *chatPrinter) Emit(event agent.Event) {
	switch event.Type {
	case agent.EventTextDelta:
		fmt.Fprint(p.out, event.Delta)
		p.printed = true
	case agent.EventToolCallStart:
		if p.printed {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintf(p.out, "[tool: %s]\n", event.ToolCallName)
		p.printed = false
	}
}

// finish prints the last assistant reply when nothing was streamed.
func (p *chatPrinter) finish(state *agent.AgentState) {
	if p.printed {
		fmt.Fprintln(p.out)
		return
	}
	if n := len(state.Messages); n > 0 {
		last := state.Messages[n-1]
		if last.Role == agent.RoleAssistant && last.Content != "" && len(last.ToolCalls) == 0 {
			fmt.Fprintln(p.out, last.Content)
		}
	}
}
