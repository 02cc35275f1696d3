package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Napageneral/recall/internal/config"
	"github.com/Napageneral/recall/internal/contacts"
	"github.com/Napageneral/recall/internal/imessage"
	"github.com/Napageneral/recall/internal/logging"
	"github.com/Napageneral/recall/internal/query"
	"github.com/Napageneral/recall/internal/render"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Read-only search over iMessage history and contacts",
		Long: `Recall answers questions about your Messages history: find a person by
number, email or name, read the conversation with every SMS, iMessage and RCS
handle merged, count messages, and scan for hostile keywords.

Run "recall serve" to expose the same operations as MCP tools.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/recall/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("recall %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newContactsCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newSentimentCmd())
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(newDoctorCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the logger.
func setup() (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logging.Init(cfg.LogLevel), nil
}

func newService() (*query.Service, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	return query.New(cfg, logger), nil
}

// emit prints an operation's text. Not-found answers are not failures.
func emit(text string, err error) error {
	fmt.Println(text)
	if err != nil && !errors.Is(err, query.ErrNotFound) {
		return err
	}
	return nil
}

// outputFormat picks the render format; --json means the full JSON form
// unless --format was given explicitly.
func outputFormat(cmd *cobra.Command, format string) render.Format {
	if jsonOutput && !cmd.Flags().Changed("format") {
		return render.FormatFull
	}
	return render.ParseFormat(format)
}

func newSearchCmd() *cobra.Command {
	var (
		limit, days int
		format      string
		noGroups    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find conversations by phone, email, name or group name and print recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			d := svc.Config().Defaults
			if !cmd.Flags().Changed("limit") {
				limit = d.Limit
			}
			if !cmd.Flags().Changed("days") {
				days = d.DaysBack
			}
			if !cmd.Flags().Changed("format") {
				format = d.Format
			}
			return emit(svc.SearchAndRead(cmd.Context(), query.SearchParams{
				Query:         args[0],
				IncludeGroups: !noGroups,
				Limit:         limit,
				DaysBack:      days,
				Format:        outputFormat(cmd, format),
			}))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "Maximum messages per conversation")
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Only messages from the last N days")
	cmd.Flags().StringVarP(&format, "format", "f", "compact", "Output format: minimal|compact|full")
	cmd.Flags().BoolVar(&noGroups, "no-groups", false, "Skip group chats")
	return cmd
}

func newContactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts <query>",
		Short: "List the message handles a phone, email or name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			return emit(svc.SearchContacts(cmd.Context(), args[0]))
		},
	}
}

func newReadCmd() *cobra.Command {
	var (
		limit, days int
		format      string
		noSent      bool
	)
	cmd := &cobra.Command{
		Use:   "read <identifier>",
		Short: "Read one conversation (phone, email, name, or group:<id>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			d := svc.Config().Defaults
			if !cmd.Flags().Changed("limit") {
				limit = d.Limit
			}
			if !cmd.Flags().Changed("days") {
				days = d.DaysBack
			}
			if !cmd.Flags().Changed("format") {
				format = d.Format
			}
			return emit(svc.ReadConversation(cmd.Context(), query.ReadParams{
				Identifier:  args[0],
				Limit:       limit,
				DaysBack:    days,
				IncludeSent: !noSent,
				Format:      outputFormat(cmd, format),
			}))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "Maximum messages")
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Only messages from the last N days")
	cmd.Flags().StringVarP(&format, "format", "f", "compact", "Output format: minimal|compact|full")
	cmd.Flags().BoolVar(&noSent, "no-sent", false, "Hide messages you sent")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		days  int
		daily bool
	)
	cmd := &cobra.Command{
		Use:   "stats <identifier>",
		Short: "Count messages in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = svc.Config().Defaults.DaysBack
			}
			return emit(svc.ConversationStats(cmd.Context(), query.StatsParams{
				Identifier: args[0],
				DaysBack:   days,
				Daily:      daily,
			}))
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Only messages from the last N days")
	cmd.Flags().BoolVar(&daily, "daily", false, "Include a per-day breakdown")
	return cmd
}

func newSentimentCmd() *cobra.Command {
	var (
		days     int
		keywords []string
		byDate   bool
	)
	cmd := &cobra.Command{
		Use:   "sentiment <identifier>",
		Short: "Scan incoming messages for hostile keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = svc.Config().Defaults.DaysBack
			}
			return emit(svc.AnalyzeSentiment(cmd.Context(), query.SentimentParams{
				Identifier:  args[0],
				Keywords:    keywords,
				DaysBack:    days,
				GroupByDate: byDate,
			}))
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Only messages from the last N days")
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Keyword to look for (repeatable)")
	cmd.Flags().BoolVar(&byDate, "by-date", false, "Count matches per day")
	return cmd
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show the config file and the stores recall reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			type Result struct {
				ConfigFile     string   `json:"config_file"`
				MessagesDB     string   `json:"messages_db"`
				ContactsDir    string   `json:"contacts_dir"`
				ContactSources []string `json:"contact_sources"`
				Driver         string   `json:"driver"`
			}
			result := Result{
				ConfigFile:     filepath.Join(configDir, "config.yaml"),
				MessagesDB:     cfg.Stores.MessagesDB,
				ContactsDir:    cfg.Stores.ContactsDir,
				ContactSources: contacts.DiscoverSources(cfg.Stores.ContactsDir),
				Driver:         cfg.Stores.Driver,
			}
			if configPath != "" {
				result.ConfigFile = configPath
			}
			if jsonOutput {
				printJSON(result)
				return nil
			}
			fmt.Printf("Config:      %s\n", result.ConfigFile)
			fmt.Printf("Messages:    %s\n", result.MessagesDB)
			fmt.Printf("Contacts:    %s (%d sources)\n", result.ContactsDir, len(result.ContactSources))
			for _, src := range result.ContactSources {
				fmt.Printf("  %s\n", src)
			}
			fmt.Printf("Driver:      %s\n", result.Driver)
			return nil
		},
	}
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the Messages and AddressBook stores are readable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			type Check struct {
				Name    string `json:"name"`
				OK      bool   `json:"ok"`
				Message string `json:"message"`
			}
			var checks []Check

			store, err := imessage.Open(cmd.Context(), cfg.Stores.Driver, cfg.Stores.MessagesDB)
			if err != nil {
				checks = append(checks, Check{Name: "messages", Message: query.Text(err)})
			} else {
				store.Close()
				checks = append(checks, Check{Name: "messages", OK: true, Message: cfg.Stores.MessagesDB})
			}

			sources := contacts.DiscoverSources(cfg.Stores.ContactsDir)
			if len(sources) == 0 {
				checks = append(checks, Check{Name: "contacts", Message: "no AddressBook databases found; names fall back to formatted numbers"})
			} else {
				checks = append(checks, Check{Name: "contacts", OK: true, Message: fmt.Sprintf("%d AddressBook sources", len(sources))})
			}

			ok := checks[0].OK
			if jsonOutput {
				printJSON(map[string]any{"ok": ok, "checks": checks})
			} else {
				for _, c := range checks {
					mark := "✓"
					if !c.OK {
						mark = "✗"
					}
					fmt.Printf("%s %-9s %s\n", mark, c.Name, c.Message)
				}
			}
			if !ok {
				return errors.New("messages database is not readable")
			}
			return nil
		},
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
