package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/automation"
	"github.com/san-kum/simbridge/internal/config"
	"github.com/san-kum/simbridge/internal/loopback"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/monitor"
	"github.com/san-kum/simbridge/internal/session"
	"github.com/san-kum/simbridge/internal/storage"
	"github.com/san-kum/simbridge/internal/transport"
	"github.com/spf13/cobra"
)

const sampleEvery = 100 * time.Millisecond

func newSession(cfg *config.Config, logger *log.Logger) *session.Session {
	var loader session.Loader = session.StaticLoader{
		Image: session.RuntimeImage{Name: loopback.Revision, Data: []byte(loopback.Revision)},
	}
	if cfg.Runtime.Path != "" {
		loader = session.FileLoader{Path: cfg.Runtime.Path}
	}

	var spawner session.Spawner = loopback.Spawner{Transfer: cfg.Transport.Transfer, Logger: logger.WithPrefix("peer")}
	if cfg.Transport.Kind == config.TransportWebSocket {
		spawner = transport.Dialer{URL: cfg.Transport.URL, Logger: logger}
	}

	return session.New(session.Config{
		Options:  cfg.Options,
		Capacity: cfg.Capacity,
		Loader:   loader,
		Spawner:  spawner,
		Logger:   logger,
		Seed:     cfg.Seed,
		OnContact: func(name string, touching bool) {
			logger.Debug("contact", "name", name, "touching", touching)
		},
	})
}

// startScene initializes the session, waits for the peer, populates the
// scene and starts stepping.
func startScene(ctx context.Context, s *session.Session, cfg *config.Config) error {
	if err := s.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	ready, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.WaitReady(ready); err != nil {
		return fmt.Errorf("wait ready: %w", err)
	}
	if err := s.AddGroup(cfg.Descriptors()); err != nil {
		return fmt.Errorf("populate scene: %w", err)
	}
	return s.Start()
}

// resetScene clears the world and repopulates it.
func resetScene(s *session.Session, cfg *config.Config) error {
	if err := s.Reset(true); err != nil {
		return err
	}
	if err := s.AddGroup(cfg.Descriptors()); err != nil {
		return err
	}
	return s.Start()
}

func sceneName(cfg *config.Config) string {
	if preset != "" {
		return preset
	}
	if cfg.Scene.Breakable {
		return "shatter"
	}
	return "drop"
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	s := newSession(cfg, logger)
	defer s.Destroy()
	if err := startScene(ctx, s, cfg); err != nil {
		return err
	}
	logger.Info("running", "scene", sceneName(cfg), "mode", s.Mode(), "duration", cfg.Duration)

	set := metrics.Standard(cfg.Options.FPS)
	var samples []storage.Sample
	start := time.Now()
	ticker := time.NewTicker(sampleEvery)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if cfg.Duration > 0 {
		timer := time.NewTimer(time.Duration(cfg.Duration * float64(time.Second)))
		defer timer.Stop()
		deadline = timer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case now := <-ticker.C:
			st := s.Stats()
			set.Observe(metrics.SampleOf(st))
			samples = append(samples, storage.Sample{
				Time:    now.Sub(start).Seconds(),
				FPS:     st.FPS,
				Delta:   st.Delta,
				Sent:    st.Sent,
				Skipped: st.Skipped,
				Objects: st.Objects,
			})
		}
	}
	s.Pause()

	st := s.Stats()
	objects := finalPoses(s)
	report := set.Report()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "mode\t%s\n", st.Mode)
	fmt.Fprintf(w, "sent\t%d\n", st.Sent)
	fmt.Fprintf(w, "skipped\t%d\n", st.Skipped)
	fmt.Fprintf(w, "dropped\t%d\n", st.Dropped)
	fmt.Fprintf(w, "objects\t%d\n", st.Objects)
	fmt.Fprintf(w, "sleeping\t%d\n", sleeping(objects))
	for _, name := range set.Names() {
		fmt.Fprintf(w, "%s\t%.3f\n", name, report[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !record {
		return nil
	}
	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	id, err := store.Save(storage.Run{
		Meta: storage.RunMetadata{
			Scene:     sceneName(cfg),
			Timestamp: start,
			Seed:      cfg.Seed,
			FPS:       cfg.Options.FPS,
			Duration:  time.Since(start).Seconds(),
			Transport: cfg.Transport.Kind,
			Mode:      st.Mode.String(),
			Metrics:   report,
			Objects:   objects,
		},
		Samples: samples,
	})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	fmt.Printf("\nrecorded %s\n", id)
	return nil
}

func finalPoses(s *session.Session) []storage.ObjectPose {
	reg := s.Registry()
	motion := s.Motion()
	var out []storage.ObjectPose
	for _, name := range reg.Names() {
		h, ok := reg.Handle(name)
		if !ok {
			continue
		}
		p := h.Position()
		out = append(out, storage.ObjectPose{
			Name:     name,
			Position: [3]float64{p[0], p[1], p[2]},
			Speed:    motion[name],
		})
	}
	return out
}

func sleeping(objects []storage.ObjectPose) int {
	n := 0
	for _, o := range objects {
		if o.Sleeping() {
			n++
		}
	}
	return n
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The dashboard owns the terminal; keep logs to warnings and above.
	logger := newLogger(cfg)
	logger.SetLevel(max(cfg.LogLevel(), log.WarnLevel))

	ctx, stop := signalContext()
	defer stop()

	s := newSession(cfg, logger)
	defer s.Destroy()
	if err := startScene(ctx, s, cfg); err != nil {
		return err
	}

	model := monitor.NewModel(s, sceneName(cfg), cfg.Options.FPS, func() error {
		return resetScene(s, cfg)
	})
	_, err = tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func runScript(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Scripted scenes start empty unless the scene flags asked for crates.
	if !cmd.Flags().Changed("crates") && preset == "" {
		cfg.Scene.Crates = 0
		cfg.Scene.Ground = false
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	s := newSession(cfg, logger)
	defer s.Destroy()
	if err := startScene(ctx, s, cfg); err != nil {
		return err
	}

	report, err := automation.NewRunner(s, logger).Run(ctx, scenario)
	if err != nil {
		return fmt.Errorf("%s: %w", scenario.Name, err)
	}
	st := s.Stats()
	fmt.Printf("%s: %d steps, %d rays, %d objects, %d steps sent\n",
		scenario.Name, report.Steps, len(report.Rays), st.Objects, st.Sent)
	return nil
}
