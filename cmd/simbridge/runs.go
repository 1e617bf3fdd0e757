package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/simbridge/internal/export"
	"github.com/san-kum/simbridge/internal/storage"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTRANSPORT\tMODE\tDURATION\tFPS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1fs\t%.1f\n",
			r.ID, r.Scene, r.Transport, r.Mode, r.Duration, r.Metrics["fps"])
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := store.LoadSamples(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  scene=%s transport=%s mode=%s seed=%d\n\n",
		meta.ID, meta.Scene, meta.Transport, meta.Mode, meta.Seed)

	if len(samples) > 1 {
		data := make([]float64, len(samples))
		for i, s := range samples {
			data[i] = float64(s.FPS)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("steps/s"),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	names := make([]string, 0, len(meta.Metrics))
	for name := range meta.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.3f\n", name, meta.Metrics[name])
	}
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	var svg string
	if svgObjects {
		meta, err := store.Load(args[0])
		if err != nil {
			return err
		}
		svg = export.ObjectsSVG(meta.Objects, 600, 400)
	} else {
		samples, err := store.LoadSamples(args[0])
		if err != nil {
			return err
		}
		svg = export.SeriesSVG(export.FPSSeries(samples), 600, 200, "#00ff88")
	}
	if svg == "" {
		return fmt.Errorf("run %s has nothing to plot", args[0])
	}

	if svgOut == "" {
		fmt.Println(svg)
		return nil
	}
	return os.WriteFile(svgOut, []byte(svg), 0644)
}
