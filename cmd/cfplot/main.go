// Package main provides the CLI entrypoint for cfplot.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/cfplot/internal/bot"
	"github.com/verte-zerg/cfplot/internal/codeforces"
	"github.com/verte-zerg/cfplot/internal/config"
	"github.com/verte-zerg/cfplot/internal/console"
	"github.com/verte-zerg/cfplot/internal/logging"
	"github.com/verte-zerg/cfplot/internal/model"
	"github.com/verte-zerg/cfplot/internal/render"
	"github.com/verte-zerg/cfplot/internal/store"
)

const (
	defaultBackend     = store.BackendSQLite
	defaultRedisAddr   = "localhost:6379"
	defaultSnapshotTTL = 24 * time.Hour
	defaultLogLevel    = "info"
)

var (
	configPath string
	settings   = defaultSettings()

	plotOut     string
	plotPreview bool

	syncActiveOnly bool
)

func defaultSettings() model.Config {
	return model.Config{
		APIBaseURL:   codeforces.DefaultBaseURL,
		APITimeout:   codeforces.DefaultTimeout,
		StoreBackend: defaultBackend,
		StorePath:    config.DefaultDBPath(),
		RedisAddr:    defaultRedisAddr,
		SnapshotTTL:  defaultSnapshotTTL,
		RenderWidth:  render.DefaultWidth,
		RenderHeight: render.DefaultHeight,
		OutDir:       config.DefaultOutDir(),
		Member:       defaultMember(),
		MaxHandles:   bot.DefaultMaxHandles,
		LogLevel:     defaultLogLevel,
	}
}

func defaultMember() string {
	if v := strings.TrimSpace(os.Getenv("USER")); v != "" {
		return v
	}
	return "me"
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cfplot",
		Short:         "Codeforces rating and solve plots",
		Long:          "Plots Codeforces ratings, solved problems and rating distributions.\nWithout a subcommand an interactive chat console is started.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runConsoleCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	flags.StringVar(&settings.APIBaseURL, "api-url", settings.APIBaseURL, "Codeforces API base URL")
	flags.DurationVar(&settings.APITimeout, "timeout", settings.APITimeout, "Codeforces API request timeout")
	flags.StringVar(&settings.StoreBackend, "store", settings.StoreBackend, "store backend (sqlite or redis)")
	flags.StringVar(&settings.StorePath, "db", settings.StorePath, "SQLite database path")
	flags.StringVar(&settings.RedisAddr, "redis-addr", settings.RedisAddr, "redis address")
	flags.IntVar(&settings.RedisDB, "redis-db", settings.RedisDB, "redis database number")
	flags.DurationVar(&settings.SnapshotTTL, "snapshot-ttl", settings.SnapshotTTL, "how long redis keeps the rating snapshot")
	flags.IntVar(&settings.RenderWidth, "width", settings.RenderWidth, "image width in pixels")
	flags.IntVar(&settings.RenderHeight, "height", settings.RenderHeight, "image height in pixels")
	flags.StringVar(&settings.OutDir, "out-dir", settings.OutDir, "directory for rendered images")
	flags.StringVar(&settings.Member, "member", settings.Member, "member name used for !member and default handles")
	flags.IntVar(&settings.MaxHandles, "max-handles", settings.MaxHandles, "maximum handles per plot")
	flags.StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPlotCmd())
	rootCmd.AddCommand(newHandleCmd())
	rootCmd.AddCommand(newSyncCmd())

	return rootCmd
}

// app holds the wired dependencies of one CLI invocation.
type app struct {
	cfg    model.Config
	logger *slog.Logger
	store  store.Store
	client *codeforces.Client
	bot    *bot.Bot
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	client := codeforces.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	b := bot.New(bot.Options{
		Source:     client,
		Handles:    st,
		Population: &bot.StorePopulation{Store: st},
		Renderer:   render.NewPNG(cfg.RenderWidth, cfg.RenderHeight),
		Logger:     logger,
		MaxHandles: cfg.MaxHandles,
	})
	logger.Debug("configured", "store", cfg.StoreBackend, "api", cfg.APIBaseURL, "out_dir", cfg.OutDir)
	return &app{cfg: cfg, logger: logger, store: st, client: client, bot: b}, nil
}

func (a *app) close() {
	if cerr := a.store.Close(); cerr != nil {
		logErrf("failed to close store: %v\n", cerr)
	}
}

func loadSettings(cmd *cobra.Command) (model.Config, error) {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return model.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "api-url", &settings.APIBaseURL, fileCfg.API.BaseURL)
	applyDurationConfig(cmd, "timeout", &settings.APITimeout, fileCfg.API.Timeout)
	applyStringConfig(cmd, "store", &settings.StoreBackend, fileCfg.Store.Backend)
	applyStringConfig(cmd, "db", &settings.StorePath, fileCfg.Store.Path)
	applyStringConfig(cmd, "redis-addr", &settings.RedisAddr, fileCfg.Store.RedisAddr)
	applyIntConfig(cmd, "redis-db", &settings.RedisDB, fileCfg.Store.RedisDB)
	applyDurationConfig(cmd, "snapshot-ttl", &settings.SnapshotTTL, fileCfg.Store.SnapshotTTL)
	applyIntConfig(cmd, "width", &settings.RenderWidth, fileCfg.Render.Width)
	applyIntConfig(cmd, "height", &settings.RenderHeight, fileCfg.Render.Height)
	applyStringConfig(cmd, "out-dir", &settings.OutDir, fileCfg.Render.OutDir)
	applyStringConfig(cmd, "member", &settings.Member, fileCfg.Bot.Member)
	applyIntConfig(cmd, "max-handles", &settings.MaxHandles, fileCfg.Bot.MaxHandles)
	applyStringConfig(cmd, "log-level", &settings.LogLevel, fileCfg.Log.Level)
	// The password has no flag; it only comes from the file or the environment.
	if fileCfg.Store.RedisPassword != nil {
		settings.RedisPassword = *fileCfg.Store.RedisPassword
	}
	if v := os.Getenv("CFPLOT_REDIS_PASSWORD"); v != "" {
		settings.RedisPassword = v
	}

	cfg := settings
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func runConsoleCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	m := console.NewModel(ctx, console.Options{
		Handler: a.bot,
		Member:  a.cfg.Member,
		OutDir:  a.cfg.OutDir,
	})
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run console: %w", err)
	}
	return nil
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot <command> [args...]",
		Short: "Run one plot command and save the image",
		Long: "Runs a plot command such as `rating tourist +peak` or `solved !me +practice`.\n" +
			"Run `cfplot plot help` for the list of commands and filters.",
		Example: "  cfplot plot rating tourist +zoom\n  cfplot plot hist !me phase_days=30 d>=2023",
		Args:    cobra.MinimumNArgs(1),
		RunE:    runPlotCmd,
	}
	cmd.Flags().StringVarP(&plotOut, "out", "o", "", "write the image to this file instead of out-dir")
	cmd.Flags().BoolVar(&plotPreview, "preview", true, "print a text preview of the plot")
	return cmd
}

func runPlotCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	req := bot.Request{Member: a.cfg.Member, Command: args[0], Args: args[1:]}
	reply := a.bot.Handle(cmd.Context(), req)
	if err := printReply(reply); err != nil {
		return err
	}
	if reply.Figure != nil && plotPreview {
		color := term.IsTerminal(int(os.Stdout.Fd()))
		if err := (render.Text{Color: color}).Write(os.Stdout, *reply.Figure); err != nil {
			logErrf("failed to draw preview: %v\n", err)
		}
	}
	if len(reply.Image) == 0 {
		return nil
	}
	path, err := saveImage(reply, a.cfg.OutDir, strings.ToLower(req.Command))
	if err != nil {
		return err
	}
	fmt.Println("Saved", path)
	return nil
}

func saveImage(reply bot.Reply, outDir, prefix string) (string, error) {
	if plotOut == "" {
		return reply.SaveImage(outDir, prefix, time.Now())
	}
	if err := os.MkdirAll(filepath.Dir(plotOut), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(plotOut, reply.Image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return plotOut, nil
}

func newHandleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handle set <member> <handle> | handle get [member]",
		Short: "Link chat members to Codeforces handles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			reply := a.bot.Handle(cmd.Context(), bot.Request{Member: a.cfg.Member, Command: "handle", Args: args})
			return printReply(reply)
		},
	}
}

func printReply(reply bot.Reply) error {
	if reply.Err != "" {
		return fmt.Errorf("%s", reply.Err)
	}
	if reply.Title != "" {
		fmt.Println(reply.Title)
	}
	if reply.Text != "" {
		fmt.Println(reply.Text)
	}
	return nil
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the rated user list for distrib and centile",
		Args:  cobra.NoArgs,
		RunE:  runSyncCmd,
	}
	cmd.Flags().BoolVar(&syncActiveOnly, "active-only", false, "only include users active in the last month")
	return cmd
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	users, err := a.client.RatedList(cmd.Context(), syncActiveOnly)
	if err != nil {
		return fmt.Errorf("failed to fetch rated list: %w", err)
	}
	snap := store.Snapshot{Ratings: make([]int, 0, len(users)), FetchedAt: time.Now().UTC()}
	for _, u := range users {
		if u.Rating != nil {
			snap.Ratings = append(snap.Ratings, *u.Rating)
		}
	}
	if err := a.store.SaveRatings(cmd.Context(), snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	a.logger.Info("snapshot stored", "users", len(snap.Ratings), "active_only", syncActiveOnly)
	fmt.Printf("Stored %d ratings\n", len(snap.Ratings))
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# cfplot configuration
# Uncomment a value to enable it. CLI flags override config values.

[api]
# base_url = %q   # Codeforces API base URL
# timeout = %q                          # Request timeout

[store]
# backend = %q          # sqlite or redis
# path = %q
# redis_addr = %q
# redis_password = ""        # Or set CFPLOT_REDIS_PASSWORD
# redis_db = 0
# snapshot_ttl = %q        # Redis only; handle links never expire

[render]
# width = %d
# height = %d
# out_dir = %q

[bot]
# member = %q               # Name used for !member and as the default handle
# max_handles = %d

[log]
# level = %q               # debug, info, warn or error
`,
		codeforces.DefaultBaseURL,
		codeforces.DefaultTimeout.String(),
		defaultBackend,
		config.DefaultDBPath(),
		defaultRedisAddr,
		defaultSnapshotTTL.String(),
		render.DefaultWidth,
		render.DefaultHeight,
		config.DefaultOutDir(),
		defaultMember(),
		bot.DefaultMaxHandles,
		defaultLogLevel,
	)
}

func validateConfig(cfg model.Config) error {
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("--api-url must not be empty")
	}
	if cfg.APITimeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	switch cfg.StoreBackend {
	case store.BackendSQLite:
		if cfg.StorePath == "" {
			return fmt.Errorf("--db must not be empty")
		}
	case store.BackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("--redis-addr must not be empty")
		}
		if cfg.RedisDB < 0 {
			return fmt.Errorf("--redis-db must be >= 0")
		}
	default:
		return fmt.Errorf("--store must be %q or %q", store.BackendSQLite, store.BackendRedis)
	}
	if cfg.SnapshotTTL < 0 {
		return fmt.Errorf("--snapshot-ttl must be >= 0")
	}
	if cfg.RenderWidth <= 0 || cfg.RenderHeight <= 0 {
		return fmt.Errorf("--width and --height must be > 0")
	}
	if cfg.OutDir == "" {
		return fmt.Errorf("--out-dir must not be empty")
	}
	if strings.TrimSpace(cfg.Member) == "" {
		return fmt.Errorf("--member must not be empty")
	}
	if cfg.MaxHandles <= 0 {
		return fmt.Errorf("--max-handles must be > 0")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
