package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskscope/internal/app"
	"taskscope/internal/config"
	"taskscope/internal/render"
	"taskscope/internal/telemetry"
)

var (
	v      = config.NewViper()
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskscope",
	Short: "Inspect generation tasks and recover lost generation hierarchies",
	Long: `taskscope reads the task queue, its logs and the generations tasks produce.

- task: everything known about one task, with its run, dependencies and outputs.
- tasks: summary of recent tasks.
- logs: system logs and browser sessions.
- recover: rebuild parent/child generations from an exported set of tasks.
- snapshot: load exports into a local SQLite store usable with --store sqlite.
- serve: read-only HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if backend, ok := cmd.Annotations["store"]; ok {
			v.Set("store.backend", backend)
		}
		path := v.GetString("config")
		if path == "" {
			path = config.Path(v.GetString("snapshot.workspace"))
		}
		loaded, err := config.Load(path, v)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func main() {
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default <workspace>/taskscope.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("store", "", "store backend: rest or sqlite")
	flags.StringP("workspace", "w", "", "workspace holding the snapshot database and config")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("json", flags.Lookup("json"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("store.backend", flags.Lookup("store"))
	_ = v.BindPFlag("snapshot.workspace", flags.Lookup("workspace"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func jsonOutput() bool {
	return v.GetBool("json")
}

func printJSON(val any) error {
	return render.JSON(os.Stdout, val)
}

func renderer() *render.Renderer {
	return render.New(os.Stdout, render.ColorEnabled(os.Stdout))
}
