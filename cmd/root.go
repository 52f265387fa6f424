package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/iksnae/practice-sync/internal"
	"github.com/iksnae/practice-sync/internal/layout"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	apiURL      string
	dbPath      string
	sessionFlag string
	goalFlag    bool
	versionKey  int64
	version     string = "dev"
	commit      string = "unknown"
	date        string = "unknown"
)

// closeTimeout bounds how long a command waits for queued remote writes
const closeTimeout = 15 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "practice-sync",
	Short: "Run, replay and synchronize practice sessions",
	Long: `A CLI for driving practice sessions against the command execution service.

Each session keeps a ledger of command responses. Ledgers are cached in
memory, persisted to a local SQLite store, and mirrored to the server's
versioned repository state.

Quick Start:
  practice-sync open --session p1                  # Open a practice session
  practice-sync run --session p1 git commit -m x   # Run one command
  practice-sync replay --goal --script goal.yaml   # Rebuild the goal session
  practice-sync show --session p1 --graph          # Show the ledger and commit graph`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Base URL of the practice API (overrides PRACTICE_SYNC_API_URL)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the local state database (overrides PRACTICE_SYNC_DB)")
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "Practice session id (empty for the anonymous session)")
	rootCmd.PersistentFlags().BoolVar(&goalFlag, "goal", false, "Use the goal-builder session instead of a practice session")
	rootCmd.PersistentFlags().Int64Var(&versionKey, "version-key", -1, "Pin the durable ledger to a practice version")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// sessionIdentity resolves the session named by the persistent flags
func sessionIdentity() (internal.SessionIdentity, error) {
	if goalFlag && sessionFlag != "" {
		return internal.SessionIdentity{}, fmt.Errorf("--goal and --session are mutually exclusive")
	}
	id := internal.PracticeSession(sessionFlag)
	if goalFlag {
		id = internal.GoalSession()
	}
	if versionKey >= 0 {
		id = id.WithVersion(versionKey)
	}
	return id, nil
}

// runtime is everything a command needs to drive sessions
type runtime struct {
	cfg      internal.Config
	manager  *internal.Manager
	replay   *internal.ReplayEngine
	remote   internal.RemoteTier
	durable  *internal.SQLiteDurable
	layout   *layout.Cache
	db       *sql.DB
	shutdown func(context.Context) error
}

// newRuntime builds the runtime for a command. Tests swap it for one
// backed by fakes.
var newRuntime = defaultRuntime

func defaultRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if !verbose {
		level, _ := internal.ParseLogLevel(cfg.LogLevel)
		internal.SetLogLevel(level)
	}

	shutdown, err := internal.SetupTracing(ctx, cfg, "practice-sync")
	if err != nil {
		internal.LogWarn("Tracing disabled: %v", err)
	}

	db, err := internal.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := internal.NewAPIClient(cfg.APIURL, cfg.APIToken, cfg.RequestTimeout)
	return assembleRuntime(cfg, db, client, client, shutdown), nil
}

// assembleRuntime wires the engine over a database and the two remote
// collaborators
func assembleRuntime(cfg internal.Config, db *sql.DB, service internal.CommandService, remote internal.RemoteTier, shutdown func(context.Context) error) *runtime {
	durable := internal.NewSQLiteDurable(db)
	store := internal.NewTieredStore(internal.NewMemoryTier(), durable, internal.NewKeyScheme(cfg.Namespace))
	executor := internal.NewExecutor(service, cfg.ResetCommand)
	replay := internal.NewReplayEngine(executor, internal.PrefixMatcher(cfg.DomainPrefix), internal.RetryPolicy{
		Retries: cfg.ReplayRetries,
		Delay:   cfg.ReplayRetryDelay,
	})
	layoutCache := layout.NewCache(cfg.LayoutDir)

	manager := internal.NewManager(internal.ManagerConfig{
		Store:        store,
		Executor:     executor,
		Replay:       replay,
		Remote:       remote,
		Layout:       layoutCache,
		WriteTimeout: cfg.RequestTimeout,
	})

	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return &runtime{
		cfg:      cfg,
		manager:  manager,
		replay:   replay,
		remote:   remote,
		durable:  durable,
		layout:   layoutCache,
		db:       db,
		shutdown: shutdown,
	}
}

// Close waits for queued remote writes, then releases the database and
// flushes traces
func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := r.manager.Close(ctx); err != nil {
		internal.LogWarn("Pending remote writes were not delivered: %v", err)
	}
	if err := r.db.Close(); err != nil {
		internal.LogWarn("Failed to close database: %v", err)
	}
	if err := r.shutdown(ctx); err != nil {
		internal.LogWarn("Failed to flush traces: %v", err)
	}
}

// withSession opens the runtime, resolves the session and hands both to fn
func withSession(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, id internal.SessionIdentity) error) error {
	id, err := sessionIdentity()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt, id)
}

// loadScriptFlag reads the script named by a --script flag, if any
func loadScriptFlag(path string) (*internal.CommandScript, error) {
	if path == "" {
		return nil, nil
	}
	return internal.LoadScript(path)
}
