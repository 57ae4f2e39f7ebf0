package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"taskscope/internal/app"
	"taskscope/internal/config"
	"taskscope/internal/inspect"
	"taskscope/internal/query"
	"taskscope/internal/recovery"
	"taskscope/internal/server"
	"taskscope/internal/store"
	"taskscope/internal/store/sqlstore"
)

func since(hours int) time.Time {
	if hours <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour)
}

func taskCmd() *cobra.Command {
	var logsOnly bool
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Show everything known about a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				view := env.Assembler.Assemble(ctx, args[0])
				if jsonOutput() {
					return printJSON(view)
				}
				if logsOnly {
					renderer().TaskLogs(view)
					return nil
				}
				renderer().Task(view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&logsOnly, "logs-only", false, "only print the task's log timeline")
	return cmd
}

func tasksCmd() *cobra.Command {
	var (
		limit    int
		hours    int
		status   string
		taskType string
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Summarize recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				summary, err := env.Assembler.Recent(ctx, inspect.RecentOptions{
					Limit:    limit,
					Status:   status,
					TaskType: taskType,
					Since:    since(hours),
				})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(summary)
				}
				renderer().Summary(summary)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", inspect.DefaultRecentLimit, "number of tasks to read")
	cmd.Flags().IntVar(&hours, "hours", 0, "only tasks created in the last N hours")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Queued, In Progress, Complete, Failed, Cancelled)")
	cmd.Flags().StringVar(&taskType, "type", "", "filter by task type")
	return cmd
}

func logsCmd() *cobra.Command {
	var (
		opts     inspect.LogsOptions
		hours    int
		sessions bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show system logs",
		Example: `  taskscope logs --task <id>
  taskscope logs --source worker --level ERROR --hours 2
  taskscope logs --latest --tag Upload
  taskscope logs --sessions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if sessions {
					list, err := env.Assembler.Sessions(ctx, opts.Limit)
					if err != nil {
						return err
					}
					if jsonOutput() {
						return printJSON(list)
					}
					renderer().Sessions(list)
					return nil
				}
				opts.Since = since(hours)
				res, err := env.Assembler.Logs(ctx, opts)
				if err != nil && len(res.Logs) == 0 {
					return err
				}
				if err != nil {
					env.Logger.Warn("log read stopped early", "err", err, "rows", len(res.Logs))
				}
				if jsonOutput() {
					return printJSON(res)
				}
				renderer().Logs(res)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Limit, "limit", "n", inspect.DefaultLogLimit, "maximum rows; 0 reads every page")
	f.StringVar(&opts.TaskID, "task", "", "only logs of this task")
	f.StringVar(&opts.SourceType, "source", "", "source type: worker, orchestrator_gpu, orchestrator_api, edge_function, "+query.SourceBrowser)
	f.StringVar(&opts.SourceID, "source-id", "", "source id, e.g. a worker id")
	f.StringVar(&opts.SessionID, "session", "", "browser session id")
	f.StringVar(&opts.Level, "level", "", "log level")
	f.StringVar(&opts.Tag, "tag", "", "messages tagged [Tag")
	f.IntVar(&hours, "hours", 0, "only logs from the last N hours")
	f.BoolVar(&opts.LatestSession, "latest", false, "only the most recent browser session")
	f.BoolVar(&sessions, "sessions", false, "list browser sessions instead of logs")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if sessions && !cmd.Flags().Changed("limit") {
			opts.Limit = 10
		}
		return nil
	}
	return cmd
}

func recoverCmd() *cobra.Command {
	var (
		fromJSON string
		parentID string
		dryRun   bool
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Rebuild child generations and variants from exported segment tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromJSON == "" {
				return fmt.Errorf("--from-json required")
			}
			tasks, err := recovery.LoadExport(fromJSON)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				report, runErr := env.Recovery(dryRun).Run(ctx, tasks, recovery.Options{ParentGenerationID: parentID})
				if jsonOutput() {
					if err := printJSON(report); err != nil {
						return err
					}
				} else {
					renderer().Recovery(report, debug)
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&fromJSON, "from-json", "", "JSON export of segment tasks")
	cmd.Flags().StringVar(&parentID, "parent-gen-id", "", "parent generation id (overrides the id found in the export)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be created without writing")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the per-segment breakdown of the export")
	return cmd
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "snapshot",
		Short:       "Manage the local SQLite snapshot",
		Annotations: map[string]string{"store": config.BackendSQLite},
	}
	var file, table string
	importCmd := &cobra.Command{
		Use:         "import",
		Short:       "Load exported rows into the snapshot",
		Annotations: map[string]string{"store": config.BackendSQLite},
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			rows, err := sqlstore.ReadRowsFile(file)
			if err != nil {
				return err
			}
			conn, s, err := app.OpenSnapshot(cmd.Context(), cfg.Snapshot.Workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			n, err := s.Import(cmd.Context(), table, rows)
			if err != nil {
				return err
			}
			logger.Info("snapshot import", "table", table, "rows", n)
			if jsonOutput() {
				return printJSON(map[string]any{"table": table, "imported": n})
			}
			fmt.Printf("Imported %d rows into %s\n", n, table)
			return nil
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "JSON export (array of rows or a single row)")
	importCmd.Flags().StringVar(&table, "table", store.TableTasks, "target table")
	cmd.AddCommand(importCmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret (TASKSCOPE_SERVER_JWT_SECRET) is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				handler, err := server.New(server.Config{
					Assembler: env.Assembler,
					BasePath:  basePath,
					Auth:      server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
					Logger:    env.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving taskscope API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
