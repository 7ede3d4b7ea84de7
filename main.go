package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Todo-Agent/agent/llm"
	oraclex "github.com/tanpawarit/Chative-Todo-Agent/agent/oracle"
	orchestratorx "github.com/tanpawarit/Chative-Todo-Agent/agent/orchestrator"
	promptx "github.com/tanpawarit/Chative-Todo-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Todo-Agent/agent/state"
	storex "github.com/tanpawarit/Chative-Todo-Agent/agent/store"
	toolx "github.com/tanpawarit/Chative-Todo-Agent/agent/tool"
	configx "github.com/tanpawarit/Chative-Todo-Agent/pkg/config"
	logx "github.com/tanpawarit/Chative-Todo-Agent/pkg/logger"
	_ "github.com/tanpawarit/Chative-Todo-Agent/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/Chative-Todo-Agent/pkg/metrics"
	qstashx "github.com/tanpawarit/Chative-Todo-Agent/pkg/qstash"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "todo-agent",
	Short: "Chat with a todo list assistant",
	Long: `todo-agent manages a todo list through natural language.
Each message is answered by a reasoning model that plans, calls the todo tools
(getAllTodos, createTodo, searchTodo, deleteTodoById) and replies with an output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configx.SetEnvFile(envFile)
		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return fmt.Errorf("load log config: %w", err)
		}
		logx.Init(*logCfg)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")
	registerCommands()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("todo-agent stopped")
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(todosCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sessionCmd())
}

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	oracleCfg, err := configx.New[llmx.Config]("ORACLE")
	if err != nil {
		return fmt.Errorf("load oracle config: %w", err)
	}
	agentCfg, err := configx.New[orchestratorx.Config]("AGENT")
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	if err := agentCfg.Validate(); err != nil {
		return err
	}
	journalCfg, err := configx.New[statex.Config]("JOURNAL")
	if err != nil {
		return fmt.Errorf("load journal config: %w", err)
	}
	metricsCfg, err := configx.New[metricsx.Config]("METRICS")
	if err != nil {
		return fmt.Errorf("load metrics config: %w", err)
	}
	qstashCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return fmt.Errorf("load qstash config: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	tools, err := toolx.NewRegistry(store)
	if err != nil {
		return err
	}
	systemPrompt, err := promptx.RenderSystem(ctx, promptTools(tools))
	if err != nil {
		return err
	}

	oracle, err := oraclex.New(ctx, *oracleCfg)
	if err != nil {
		return err
	}

	journal, err := statex.Open(*journalCfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	opts := append(agentCfg.Options(), orchestratorx.WithJournal(journal))
	if qstashCfg.Enabled() {
		client, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			return fmt.Errorf("qstash client: %w", err)
		}
		opts = append(opts, orchestratorx.WithNotifier(orchestratorx.NewQStashNotifier(client)))
	}

	go func() {
		if err := metricsx.Serve(ctx, *metricsCfg); err != nil {
			log.Warn().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	orch, err := orchestratorx.New(ctx, oracle, tools, systemPrompt, opts...)
	if err != nil {
		return err
	}
	log.Info().
		Str("session_id", orch.SessionID()).
		Str("oracle", oracleCfg.Backend).
		Str("model", oracleCfg.Model).
		Str("journal", journalCfg.Backend).
		Int("max_steps", agentCfg.MaxSteps).
		Msg("chat session started")

	return orch.Run(ctx, in, out)
}

func openStore(ctx context.Context) (storex.Store, error) {
	storeCfg, err := configx.New[storex.Config]("STORE")
	if err != nil {
		return nil, fmt.Errorf("load store config: %w", err)
	}
	return storex.Open(ctx, *storeCfg)
}

func promptTools(r *toolx.Registry) []promptx.Tool {
	descs := r.Descriptors()
	out := make([]promptx.Tool, 0, len(descs))
	for _, d := range descs {
		out = append(out, promptx.Tool{Signature: d.Signature, Description: d.Description})
	}
	return out
}

func todosCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "todos", Short: "Inspect and edit the todo store directly"}
	cmd.AddCommand(todosListCmd())
	cmd.AddCommand(todosSearchCmd())
	cmd.AddCommand(todosDeleteCmd())
	return cmd
}

func todosListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s storex.Store) error {
				todos, err := s.List(ctx)
				if err != nil {
					return err
				}
				renderTodos(cmd.OutOrStdout(), todos)
				return nil
			})
		},
	}
}

func todosSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "List todos containing text, ignoring case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s storex.Store) error {
				todos, err := s.Search(ctx, args[0])
				if err != nil {
					return err
				}
				renderTodos(cmd.OutOrStdout(), todos)
				return nil
			})
		},
	}
}

func todosDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: id %q is not an integer", contractx.ErrValidation, args[0])
			}
			return withStore(cmd.Context(), func(ctx context.Context, s storex.Store) error {
				if err := s.DeleteByID(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted todo %d\n", id)
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeCfg, err := configx.New[storex.Config]("STORE")
			if err != nil {
				return fmt.Errorf("load store config: %w", err)
			}
			storeCfg.AutoMigrate = false

			s, err := storex.Open(cmd.Context(), *storeCfg)
			if err != nil {
				return err
			}
			defer s.Close()

			bs, ok := s.(*storex.BunStore)
			if !ok {
				return errors.New("the memory store has no migrations")
			}
			if err := storex.Migrate(cmd.Context(), bs.DB()); err != nil {
				return err
			}
			log.Info().Str("driver", storeCfg.Driver).Msg("migrations applied")
			return nil
		},
	}
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Manage journaled chat sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the journaled transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(j statex.Journal) error {
				entries, err := j.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"#", "Role", "Payload"})
				for i, e := range entries {
					tw.AppendRow(table.Row{i, e.Role, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Drop a journaled session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(j statex.Journal) error {
				return j.Delete(cmd.Context(), args[0])
			})
		},
	})
	return cmd
}

func withStore(ctx context.Context, fn func(ctx context.Context, s storex.Store) error) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func withJournal(fn func(j statex.Journal) error) error {
	cfg, err := configx.New[statex.Config]("JOURNAL")
	if err != nil {
		return fmt.Errorf("load journal config: %w", err)
	}
	j, err := statex.Open(*cfg)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}

func renderTodos(w io.Writer, todos []contractx.Todo) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"ID", "Todo", "Created", "Updated"})
	for _, t := range todos {
		tw.AppendRow(table.Row{t.ID, t.Todo, t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339)})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d todo(s)", len(todos)), "", ""})
	tw.Render()
}
