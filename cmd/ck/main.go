package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"compliancekit/internal/app"
	"compliancekit/internal/checklist"
	"compliancekit/internal/config"
	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/events"
	"compliancekit/internal/logutil"
	"compliancekit/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ck",
	Short: "ComplianceKit CLI",
	Long: `ComplianceKit builds regulatory compliance checklists for small businesses.
Core concepts:
- Selection: company type, jurisdiction and industry. Together they decide which obligations apply.
- Checklist: the ordered list of obligations derived from a selection, grouped by category, each with a priority.
- Source: where items come from. The built-in rule table by default, or a remote function or an LLM.
- Reminder: a dated to-do you can mark done and reopen; past-due open reminders show as overdue.
- Workspace: the directory holding compliancekit.yml and the .compliancekit data folder.
- Event log: every checklist and reminder change, view with 'ck log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := config.LoadDotEnv(viper.GetString("workspace")); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	config.Bind(viper.GetViper())
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.StringP("config", "c", "", "config file (default <workspace>/compliancekit.yml)")
	flags.Bool("json", false, "output JSON")
	flags.StringP("user", "u", "local-user", "user id that owns created records")
	flags.String("log-level", "", "log level override")
	_ = viper.BindPFlag("workspace", flags.Lookup("workspace"))
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("json", flags.Lookup("json"))
	_ = viper.BindPFlag("user", flags.Lookup("user"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(reminderCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{
		Use:   "checklist",
		Short: "Generate and inspect checklists",
	}
	cl.AddCommand(checklistCreateCmd())
	cl.AddCommand(checklistListCmd())
	cl.AddCommand(checklistShowCmd())
	cl.AddCommand(checklistGroupsCmd())
	cl.AddCommand(checklistDownloadCmd())
	cl.AddCommand(checklistArchiveCmd())
	return cl
}

func checklistCreateCmd() *cobra.Command {
	var sel domain.Selection
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate and save a checklist for a selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Config.Generator.StrictSelection {
					if err := checklist.DefaultCatalog().Validate(sel); err != nil {
						return err
					}
				}
				rec, err := a.Engine.CreateChecklist(ctx, currentUser(), sel)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printChecklist(rec)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sel.CompanyType, "company-type", "", "company type")
	cmd.Flags().StringVar(&sel.Jurisdiction, "jurisdiction", "", "state or jurisdiction")
	cmd.Flags().StringVar(&sel.Industry, "industry", "", "industry")
	_ = cmd.MarkFlagRequired("company-type")
	_ = cmd.MarkFlagRequired("jurisdiction")
	_ = cmd.MarkFlagRequired("industry")
	return cmd
}

func checklistListCmd() *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your checklists, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListChecklists(ctx, currentUser(), engine.PageRequest{Limit: limit, Cursor: cursor})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company Type", "Jurisdiction", "Industry", "Items", "Source", "Created"})
				for _, rec := range page.Items {
					tw.AppendRow(table.Row{rec.ID, rec.CompanyType, rec.Jurisdiction, rec.Industry, len(rec.Items), rec.Source, rec.CreatedAt})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func checklistShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Engine.GetOwnedChecklist(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printChecklist(rec)
				return nil
			})
		},
	}
	return cmd
}

func checklistGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups <id>",
		Short: "Show a checklist grouped by category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				_, groups, err := a.Engine.GroupChecklist(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				for _, g := range groups {
					fmt.Printf("%s (%d)\n", g.Category, len(g.Items))
					for _, it := range g.Items {
						fmt.Printf("  [%s] %s\n", it.Priority, it.Title)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func checklistDownloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Write the plain-text export of a checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				doc, err := a.Engine.ExportChecklist(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := os.Stdout.Write(doc.Body)
					return err
				}
				if out == "" {
					out = doc.Name
				}
				if err := os.WriteFile(out, doc.Body, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, - for stdout (default compliance-checklist-<id>.txt)")
	return cmd
}

func checklistArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Upload the export to object storage and print a download link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				archived, err := a.Engine.ArchiveChecklist(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(archived)
			})
		},
	}
	return cmd
}

func reminderCmd() *cobra.Command {
	rem := &cobra.Command{
		Use:   "reminder",
		Short: "Manage dated reminders",
	}
	rem.AddCommand(reminderCreateCmd())
	rem.AddCommand(reminderListCmd())
	rem.AddCommand(reminderShowCmd())
	rem.AddCommand(reminderToggleCmd())
	rem.AddCommand(reminderSetCmd("done", "Mark a reminder completed", true))
	rem.AddCommand(reminderSetCmd("undone", "Reopen a completed reminder", false))
	return rem
}

func reminderCreateCmd() *cobra.Command {
	var title, description, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rem, err := a.Engine.CreateReminder(ctx, currentUser(), title, optionalString(description), due)
				if err != nil {
					return err
				}
				return printJSONOrTable(server.NewReminderResponse(rem, a.Engine.Clock()))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func reminderListCmd() *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your reminders by due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListReminders(ctx, currentUser(), engine.PageRequest{Limit: limit, Cursor: cursor})
				if err != nil {
					return err
				}
				now := a.Engine.Clock()
				items := make([]server.ReminderResponse, 0, len(page.Items))
				for _, rem := range page.Items {
					items = append(items, server.NewReminderResponse(rem, now))
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "next_cursor": page.NextCursor})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Completed", "Overdue"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.DueDate, it.Completed, it.Overdue})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func reminderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rem, err := a.Engine.GetOwnedReminder(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(server.NewReminderResponse(rem, a.Engine.Clock()))
			})
		},
	}
	return cmd
}

func reminderToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a reminder between open and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rem, err := a.Engine.ToggleReminder(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(server.NewReminderResponse(rem, a.Engine.Clock()))
			})
		},
	}
	return cmd
}

func reminderSetCmd(use, short string, completed bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rem, err := a.Engine.SetReminderCompleted(ctx, currentUser(), args[0], completed)
				if err != nil {
					return err
				}
				return printJSONOrTable(server.NewReminderResponse(rem, a.Engine.Clock()))
			})
		},
	}
	return cmd
}

func rulesCmd() *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the checklist rule table",
		Long:  "The rule table holds the canonical checklist items and the conditions that raise or lower their priority.",
	}
	rules.AddCommand(rulesShowCmd())
	rules.AddCommand(rulesValidateCmd())
	rules.AddCommand(rulesOptionsCmd())
	return rules
}

func rulesShowCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRuleSet(file)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Key", "Category", "Title", "Priority"})
			for _, it := range rs.Items {
				tw.AppendRow(table.Row{it.Key, it.Category, it.Title, it.Priority})
			}
			tw.Render()
			rt := table.NewWriter()
			rt.SetOutputMirror(os.Stdout)
			rt.AppendHeader(table.Row{"Item", "When", "Equals", "Priority"})
			for _, r := range rs.Rules {
				rt.AppendRow(table.Row{r.Item, r.MatchField, r.MatchValue, r.Priority})
			}
			rt.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "rule table file (default generator.rules_file or the built-in table)")
	return cmd
}

func rulesValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a rule table file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadRuleSet(file)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("rules OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "rule table file (default generator.rules_file or the built-in table)")
	return cmd
}

func rulesOptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the selectable company types, jurisdictions and industries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSONOrTable(checklist.DefaultCatalog())
		},
	}
	return cmd
}

func loadRuleSet(file string) (*checklist.RuleSet, error) {
	if file == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		file = cfg.Generator.RulesFile
	}
	if file == "" {
		return checklist.Default(), nil
	}
	return checklist.Load(file)
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every checklist creation and reminder change is recorded as an event.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show your most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if evtType != "" && !events.Known(evtType) {
				return fmt.Errorf("unknown event type %q (known: %v)", evtType, events.Types)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListEvents(ctx, currentUser(), engine.PageRequest{Limit: n}, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page.Items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, evt := range page.Items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{
		Use:   "token",
		Short: "Issue API credentials",
	}
	tok.AddCommand(tokenMintCmd())
	tok.AddCommand(tokenCreateKeyCmd())
	return tok
}

func tokenMintCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token for --user signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			now := time.Now().UTC()
			token, err := server.SignToken(cfg.Auth.JWTSecret, currentUser(), ttl, now)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(server.DevLoginResponse{Token: token, ExpiresAt: now.Add(ttl).Format(time.RFC3339)})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	return cmd
}

func tokenCreateKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an API key for --user; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, plain, err := a.Engine.CreateAPIKey(ctx, currentUser(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(server.CreatedAPIKeyResponse{APIKey: key, Key: plain})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Configuration comes from compliancekit.yml in the workspace, then COMPLIANCEKIT_* environment variables (a .env file is read too), then flags.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config with secrets omitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				viper.Set("server.addr", addr)
			}
			if basePath != "" {
				viper.Set("server.base_path", basePath)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Config.Auth.JWTSecret == "" {
					a.Log.Warn().Msg("auth.jwt_secret is empty; bearer tokens are disabled")
				}
				handler, err := a.Handler()
				if err != nil {
					return err
				}
				if hooks := a.Webhooks(); hooks != nil {
					go hooks.Run(ctx)
				}
				srvCfg := a.Config.Server
				srv := &http.Server{
					Addr:         srvCfg.Addr,
					Handler:      handler,
					ReadTimeout:  srvCfg.ReadTimeout,
					WriteTimeout: srvCfg.WriteTimeout,
				}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info().Str("addr", srvCfg.Addr).Str("base_path", srvCfg.BasePath).Msg("serving ComplianceKit API")
				fmt.Printf("Serving ComplianceKit API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
					srvCfg.Addr, srvCfg.BasePath, srvCfg.BasePath, srvCfg.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper(), viper.GetString("config"))
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := logutil.New(cfg.Log.Level, cfg.Log.File, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer closeLog()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printChecklist(rec domain.ChecklistRecord) {
	fmt.Printf("Checklist %s (%s)\n%s / %s / %s\n", rec.ID, rec.Source, rec.CompanyType, rec.Jurisdiction, rec.Industry)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Category", "Title", "Priority"})
	for i, it := range rec.Items {
		tw.AppendRow(table.Row{i + 1, it.Category, it.Title, it.Priority})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func currentUser() string {
	return viper.GetString("user")
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
