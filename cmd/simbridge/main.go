package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/config"
	"github.com/san-kum/simbridge/internal/layout"
	"github.com/san-kum/simbridge/internal/loopback"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	dataDir    string
	preset     string

	duration      float64
	fps           int
	crates        int
	breakable     bool
	transportKind string
	url           string
	addr          string
	seed          uint64
	record        bool
	copyMode      bool

	svgOut     string
	svgObjects bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "simbridge",
		Short:         "drive a physics simulation over a shared-buffer bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".simbridge", "data directory for recorded runs")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "preset as group/name, e.g. scene/shatter")

	layoutCmd := &cobra.Command{
		Use:   "layout",
		Short: "print the shared buffer layout",
		RunE:  showLayout,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scene headless and report step statistics",
		RunE:  runScene,
	}
	sceneFlags(runCmd)
	runCmd.Flags().BoolVar(&record, "record", false, "save the run under the data directory")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "run a scene with a live dashboard",
		RunE:  runMonitor,
	}
	sceneFlags(monitorCmd)

	scriptCmd := &cobra.Command{
		Use:   "script [file]",
		Short: "run a yaml scenario against a fresh session",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}
	sceneFlags(scriptCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve loopback simulation peers over websocket",
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "inspect recorded runs",
	}
	runsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list recorded runs",
			RunE:  listRuns,
		},
		&cobra.Command{
			Use:   "show [run_id]",
			Short: "plot a run's step rate",
			Args:  cobra.ExactArgs(1),
			RunE:  showRun,
		},
	)
	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&svgOut, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&svgObjects, "objects", false, "plot final object positions instead of step rate")
	runsCmd.AddCommand(exportCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage configuration",
	}
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "init [path]",
			Short: "write the default configuration",
			Args:  cobra.MaximumNArgs(1),
			RunE:  initConfig,
		},
		&cobra.Command{
			Use:   "presets",
			Short: "list presets",
			RunE:  listPresets,
		},
	)

	rootCmd.AddCommand(layoutCmd, runCmd, monitorCmd, scriptCmd, serveCmd, runsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func sceneFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration in seconds (0 runs until interrupted)")
	cmd.Flags().IntVar(&fps, "fps", 0, "target step rate")
	cmd.Flags().IntVar(&crates, "crates", config.DefaultCrates, "number of crates")
	cmd.Flags().BoolVar(&breakable, "breakable", false, "make crates breakable")
	cmd.Flags().StringVar(&transportKind, "transport", config.TransportPipe, "pipe or websocket")
	cmd.Flags().StringVar(&url, "url", config.DefaultURL, "websocket url of a remote peer")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "fragmentation seed")
	cmd.Flags().BoolVar(&copyMode, "copy", false, "copy the shared buffer instead of transferring it")
}

// loadConfig layers the config file, the preset and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if preset != "" {
		group, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset %q: expected group/name", preset)
		}
		p := config.GetPreset(group, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q", preset)
		}
		copied := *p
		cfg = &copied
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("fps") {
		cfg.Options.FPS = fps
	}
	if flags.Changed("crates") {
		cfg.Scene.Crates = crates
	}
	if flags.Changed("breakable") {
		cfg.Scene.Breakable = breakable
	}
	if flags.Changed("transport") {
		cfg.Transport.Kind = transportKind
	}
	if flags.Changed("url") {
		cfg.Transport.URL = url
	}
	if flags.Changed("addr") {
		cfg.Transport.Addr = addr
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("copy") {
		cfg.Transport.Transfer = !copyMode
	}
	cfg.Options = cfg.Options.WithDefaults()
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           cfg.LogLevel(),
	})
	log.SetDefault(logger)
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func showLayout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l := layout.Plan(cfg.Capacity)
	if err := l.Validate(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tOFFSET\tLENGTH\tSTRIDE\tRECORDS")
	for _, cat := range layout.Categories() {
		s := l.Slot(cat)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", cat, s.Offset, s.Length, cat.Stride(), s.Records())
	}
	fmt.Fprintf(w, "total\t\t%d\t\t\n", l.Total)
	return w.Flush()
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	mux := http.NewServeMux()
	mux.Handle("/sim", loopback.Handler(logger.WithPrefix("peer")))
	srv := &http.Server{Addr: cfg.Transport.Addr, Handler: mux}

	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	logger.Info("serving", "addr", cfg.Transport.Addr, "path", "/sim")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := "simbridge.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tPRESETS")
	for _, g := range config.Groups() {
		fmt.Fprintf(w, "%s\t%s\n", g, strings.Join(config.ListPresets(g), ", "))
	}
	return w.Flush()
}
