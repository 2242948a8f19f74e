package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"webrag/internal/domain"
	"webrag/internal/loader"
	"webrag/internal/server"
	"webrag/internal/tui"
	"webrag/internal/vectorstore/postgres"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				srv := server.New(a.svc, server.Options{
					AllowOrigins: a.cfg.Server.AllowOrigins,
					Metrics:      a.metrics,
					Logger:       a.log,
				})
				return srv.Run(cmd.Context(), addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func ingestCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest <file|dir|glob>...",
		Short: "Ingest local .txt, .md and .pdf files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				docs, err := loader.New(nil).Load(cmd.Context(), args)
				if err != nil {
					return err
				}
				report, err := a.svc.Ingest(cmd.Context(), docs)
				if err != nil {
					return err
				}
				return printReport(cmd, report, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}

func scrapeCmd(opts *rootOptions) *cobra.Command {
	var (
		store  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>...",
		Short: "Scrape pages to markdown, optionally storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				if store {
					report, err := a.svc.ScrapeAndStore(cmd.Context(), args)
					if err != nil {
						return err
					}
					return printReport(cmd, report, asJSON)
				}
				results, err := a.svc.Scrape(cmd.Context(), args)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, map[string]any{"results": results})
				}
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "# %s\nerror: %s\n\n", r.URL, r.Error)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n\n", r.URL, r.Markdown)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "archive and ingest the scraped pages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func searchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the stored passages nearest to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				results, err := a.svc.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, map[string]any{"query": args[0], "results": results, "total_found": len(results)})
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
					return nil
				}
				for i, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s #%d  distance=%.4f\n%s\n\n", i+1, r.Metadata.Origin, r.Metadata.Position, r.Distance, r.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func askCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the stored passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				ans, err := a.svc.Answer(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, ans)
				}
				fmt.Fprintln(cmd.OutOrStdout(), ans.Response)
				if len(ans.Citations) > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
					for i, c := range ans.Citations {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s #%d\n", i+1, c.Origin, c.Position)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of passages to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}

func chatCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chat [file|dir|glob]...",
		Short: "Interactive chat over the store, optionally ingesting files first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				// log lines would tear the alt screen; errors show in the status bar
				a.log.SetOutput(io.Discard)
				summary := ""
				if len(args) > 0 {
					docs, err := loader.New(nil).Load(cmd.Context(), args)
					if err != nil {
						return err
					}
					report, err := a.svc.Ingest(cmd.Context(), docs)
					if err != nil {
						return err
					}
					summary = reportLine(report)
				}
				info, err := a.svc.Info(cmd.Context())
				if err != nil {
					return err
				}
				if summary != "" {
					summary += "  "
				}
				summary += fmt.Sprintf("%s: %d passages", info.Backend, info.TotalPassages)

				m := tui.New(a.svc, summary, tui.Options{K: limit})
				_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of passages to retrieve (default 5)")
	return cmd
}

func infoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(a *app) error {
				info, err := a.svc.Info(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.VectorStore.Type != "postgres" || cfg.VectorStore.Postgres == nil {
				return fmt.Errorf("migrate needs vector_store.type postgres, have %q", cfg.VectorStore.Type)
			}
			dsn := postgresDSN(cfg.VectorStore.Postgres)
			if dsn == "" {
				return fmt.Errorf("postgres dsn missing")
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			if err := postgres.Migrate(dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied\n", direction)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 means all)")
	return cmd
}

func reportLine(r domain.IngestReport) string {
	s := r.Summary
	return fmt.Sprintf("%d documents, %d ok, %d failed, %d passages stored", s.Total, s.Successful, s.Failed, s.PassagesStored)
}

func printReport(cmd *cobra.Command, r domain.IngestReport, asJSON bool) error {
	if asJSON {
		return printJSON(cmd, r)
	}
	for _, res := range r.Results {
		line := fmt.Sprintf("%-7s %s (%d passages)", res.Status, res.Origin, res.Passages)
		if res.ArchivePath != "" {
			line += " -> " + res.ArchivePath
		}
		if res.Error != "" {
			line += ": " + res.Error
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	fmt.Fprintln(cmd.OutOrStdout(), reportLine(r))
	return nil
}
