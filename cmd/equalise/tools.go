package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/fsutil"
	"github.com/banshee-data/equalisation/internal/report"
	"github.com/banshee-data/equalisation/internal/store"
)

func runAnalyse(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("analyse")
	edges := fs.String("edges", "", "Edge file to analyse (required)")
	budget := fs.Float64("tail-budget", -1, "Pixels allowed above the tail threshold (default: config tail_budget)")
	push := fs.Bool("push-threshold0", false, "Load each chip's tail threshold into threshold 0 (needs --registers)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		b := *budget
		if b < 0 {
			b = e.Config().GetTailBudget()
		}
		analysis, err := e.Analyse(*edges, b)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tCOL\tPRESENT\tUNEQUALISED\tTAIL")
		for _, a := range analysis {
			fmt.Fprintf(tw, "%d\t%d\t%t\t%d\t%d\n", a.Row, a.Column, a.Present, a.Unequalised, a.TailThreshold)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if *push {
			return e.PushThreshold0(analysis)
		}
		return nil
	})
}

func runPush(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("push")
	file := fs.String("file", "", "Result file to load (required)")
	kind := fs.String("kind", "", "What to load: thresholdN, dacPixel, thresholdAdj or thresholdNMask (required)")
	orValue := fs.Int("or", 0, "Value ORed into adjustment words")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"file": *file, "kind": *kind, "registers": c.registers}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		var err error
		switch *kind {
		case "thresholdN":
			err = e.PushThresholdN(*file)
		case "dacPixel":
			err = e.PushDACPixel(*file)
		case "thresholdAdj":
			err = e.PushThresholdAdj(*file, equalisation.ThresholdAdjName, int16(*orValue))
		case "thresholdNMask":
			err = e.PushThresholdAdj(*file, equalisation.ThresholdNMaskName, int16(*orValue))
		default:
			return fmt.Errorf("unknown push kind %q", *kind)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Loaded %s from %s\n", *kind, *file)
		return nil
	})
}

func runReport(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("report")
	edges := fs.String("edges", "", "Edge file to report on (required)")
	dir := fs.String("dir", "", "Output directory (default: <edges>.report)")
	stride := fs.Int("stride", 4, "Pixel stride of the edge heatmaps")
	budget := fs.Float64("tail-budget", -1, "Pixels allowed above the tail threshold (default: config tail_budget)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges}); err != nil {
		return err
	}
	if *dir == "" {
		*dir = *edges + ".report"
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		b := *budget
		if b < 0 {
			b = e.Config().GetTailBudget()
		}
		written, err := report.Generate(e, *edges, *dir, fsutil.OSFileSystem{}, report.Options{TailBudget: b, Stride: *stride})
		for _, p := range written {
			fmt.Fprintf(stdout, "Wrote %s\n", p)
		}
		return err
	})
}

func runPipeline(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("run")
	manifest := fs.String("manifest", "", "Scan manifest JSON (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"manifest": *manifest}); err != nil {
		return err
	}
	m, err := equalisation.LoadManifest(*manifest)
	if err != nil {
		return err
	}
	if c.registers == "" {
		c.registers = filepath.Join(m.OutputDir, "registers.db")
	}
	ledgerFile, err := store.Open(filepath.Join(m.OutputDir, "ledger.db"))
	if err != nil {
		return err
	}
	defer ledgerFile.Close()

	ctx, stop := signalContext()
	defer stop()
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		p, err := equalisation.NewPipeline(e, m, ledgerFile.Ledger(nil))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Run %s\n", p.RunID())
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Threshold adjust: %s\nCheck edges: %s\n", res.ThresholdAdjFile, res.CheckEdgeFile)
		return nil
	})
}

func runMigrate(args []string, stdout io.Writer) error {
	fs, _ := newFlagSet("migrate")
	file := fs.String("file", "", "Result or ledger file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"file": *file}); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: equalise migrate --file <file> up|down|version|force <version>")
	}
	f, err := store.OpenExisting(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	switch action := fs.Arg(0); action {
	case "up":
		err = f.MigrateUp()
	case "down":
		err = f.MigrateDown()
	case "force":
		if fs.NArg() < 2 {
			return fmt.Errorf("force needs a version")
		}
		v, perr := strconv.Atoi(fs.Arg(1))
		if perr != nil {
			return fmt.Errorf("invalid version '%s': %w", fs.Arg(1), perr)
		}
		err = f.MigrateForce(v)
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	if err != nil {
		return err
	}
	v, dirty, err := f.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Schema version %d (dirty=%t)\n", v, dirty)
	return nil
}
