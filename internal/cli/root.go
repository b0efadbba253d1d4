// Package cli provides the secondbrain command-line interface.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"secondbrain/internal/api"
	"secondbrain/internal/chat"
	"secondbrain/internal/config"
	"secondbrain/internal/documents"
	"secondbrain/internal/history"
	"secondbrain/internal/logger"
)

// version is set at build time with -ldflags "-X secondbrain/internal/cli.version=..."
var version = "dev"

// Persistent flag values.
var (
	configPath    string
	flagAPIURL    string
	flagUserEmail string
	flagTimezone  string
	flagTimeout   time.Duration
	flagVerbose   bool
)

// Resolved by setup before any command runs.
var (
	cfg    *config.Config
	client *api.Client
)

// skipSetup marks commands that need no configuration.
const skipSetup = "skip-setup"

var rootCmd = &cobra.Command{
	Use:   "secondbrain",
	Short: "Chat with your personal knowledge base",
	Long: `secondbrain is a terminal client for a personal knowledge base.

Upload PDFs, notes, audio and web pages, then ask questions and get answers
grounded in your own documents, with citations back to the sources.

Run without a command to start an interactive chat.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runChat,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default "+config.DefaultConfigPath+")")
	flags.StringVar(&flagAPIURL, "api-url", "", "backend base URL")
	flags.StringVar(&flagUserEmail, "user-email", "", "user identity sent as X-User-Email")
	flags.StringVar(&flagTimezone, "timezone", "", "IANA timezone sent with chat requests")
	flags.DurationVar(&flagTimeout, "timeout", 0, "request timeout (e.g. 30s)")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "log requests and stream activity to stderr")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup resolves the configuration and builds the API client.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		loaded.APIBaseURL = flagAPIURL
	}
	if flags.Changed("user-email") {
		loaded.UserEmail = flagUserEmail
	}
	if flags.Changed("timezone") {
		loaded.Timezone = flagTimezone
	}
	if flags.Changed("timeout") {
		loaded.RequestTimeout = flagTimeout
	}
	if flags.Changed("verbose") {
		loaded.Verbose = flagVerbose
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetVerbose(loaded.Verbose)
	logger.Debug("using backend %s", loaded.APIBaseURL)

	cfg = loaded
	client = api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout,
		api.WithUserEmail(cfg.UserEmail),
		api.WithStreamTimeout(cfg.StreamTimeout),
	)
	return nil
}

func newSession() *chat.Session {
	return chat.NewSession(client, chat.WithTimezone(cfg.Timezone))
}

func newStore() *documents.Store {
	return documents.NewStore(client)
}

// openHistory loads the local conversation history. A load failure is
// reported and an empty history used.
func openHistory() *history.Manager {
	mgr := history.NewManager(cfg.HistoryPath, cfg.MaxHistory)
	if err := mgr.Load(); err != nil {
		logger.Warn("failed to load history: %v", err)
	}
	return mgr
}
