package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/equalisation/internal/equalisation"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runEdges(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("edges")
	scan := fs.String("scan", "", "Threshold 0 scan file (required)")
	detector := fs.String("detector", "excalibur", "Detector group in the scan file")
	control := fs.String("control", "", "Scan dataset holding the control value, recorded as thresholdAVal")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"scan": *scan, "out": *out}); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.CalcEdgeThresholds(ctx, *scan, *detector, *control, *out))
	})
}

func runPopulations(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("populations")
	in := fs.String("in", "", "Result file holding the per-pixel dataset (required)")
	dataset := fs.String("dataset", equalisation.EdgeThresholds, "Per-pixel dataset to bin")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"in": *in, "out": *out}); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ChipPopulations(ctx, *in, *dataset, *out))
	})
}

func runShift(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("shift")
	edges := fs.String("edges", "", "Edge file taken with the DAC pixel setting (required)")
	reference := fs.String("reference", "", "Reference edge file (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges, "reference": *reference, "out": *out}); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.DACPixelShift(ctx, *edges, *reference, *out))
	})
}

func runResponse(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("response")
	files := fs.String("files", "", "Comma-separated result files, at least 2 (required)")
	axis := fs.String("axis", "", "Comma-separated control values, one per file (default: thresholdAVal of each file)")
	dataset := fs.String("dataset", equalisation.GaussianPosition, "Dataset to fit")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"files": *files, "out": *out}); err != nil {
		return err
	}
	values, err := parseCSVFloatSlice(*axis)
	if err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ResponseFromFiles(parseCSVList(*files), values, *dataset, *out))
	})
}

func runConfigFromResponse(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("config-from-response")
	resp := fs.String("response", "", "Response file (required)")
	target := fs.Float64("target", 0, "Response value to invert at")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"response": *resp, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ConfigFromThresholdResponse(*resp, *target, *out))
	})
}

func runThresholdNOpt(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("threshold-n-opt")
	c.addTarget()
	resp := fs.String("response", "", "Per-chip threshold N response file (required)")
	edges := fs.String("edges", "", "Edge file holding the chip sigmas (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"response": *resp, "edges": *edges, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ThresholdNOpt(*resp, *edges, c.target(e), *out))
	})
}

func runThresholdNMask(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("threshold-n-mask")
	c.addTarget()
	a := fs.String("edges-a", "", "Edge file taken with threshold 0 (required)")
	b := fs.String("edges-b", "", "Edge file taken with threshold N (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges-a": *a, "edges-b": *b, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ThresholdNMask(*a, *b, c.target(e), *out))
	})
}

func runLimits(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("limits")
	edges := fs.String("edges", "", "Edge file with chip populations (required)")
	budget := fs.Float64("tail-budget", -1, "Pixels allowed above the limit (default: config tail_budget)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		b := *budget
		if b < 0 {
			b = e.Config().GetTailBudget()
		}
		return wrote(stdout, *out, e.ThresholdTargetFromChipPopulations(*edges, b, *out))
	})
}

func runDACPixelOpt(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("dac-pixel-opt")
	c.addTarget()
	resp := fs.String("response", "", "Per-chip DAC pixel shift response file (required)")
	limits := fs.String("limits", "", "Threshold limits file (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"response": *resp, "limits": *limits, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.DACPixelOpt(*resp, *limits, c.target(e), *out))
	})
}

func runControlBits(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("control-bits")
	c.addTarget()
	edges := fs.String("edges", "", "Edge file (required)")
	dacOpt := fs.String("dac-opt", "", "DAC pixel opt file with chip resolutions (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges, "dac-opt": *dacOpt, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.DACPixelControlBits(*edges, c.target(e), *dacOpt, *out))
	})
}

func runThresholdAdj(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("threshold-adj")
	bits := fs.String("bits", "", "Control bits file (required)")
	mask := fs.String("mask", "", "Threshold N mask file (required)")
	orValue := fs.Int("or", 0, "Value ORed into every word")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"bits": *bits, "mask": *mask, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.ThresholdAdj(*bits, *mask, int16(*orValue), *out))
	})
}

func runTweak(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("tweak")
	c.addTarget()
	edges := fs.String("edges", "", "Edge file taken with the adjustment (required)")
	adj := fs.String("adj", "", "Threshold adjust file (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"edges": *edges, "adj": *adj, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.TweakThresholdAdj(*edges, *adj, c.target(e), *out))
	})
}

func runSelect(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("select")
	c.addTarget()
	edgesA := fs.String("edges-a", "", "Edge file of run A (required)")
	edgesB := fs.String("edges-b", "", "Edge file of run B (required)")
	adjA := fs.String("adj-a", "", "Threshold adjust file of run A (required)")
	adjB := fs.String("adj-b", "", "Threshold adjust file of run B (required)")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	err := required(map[string]string{"edges-a": *edgesA, "edges-b": *edgesB, "adj-a": *adjA, "adj-b": *adjB, "out": *out})
	if err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.SelectClosestThresholdAdj(*edgesA, *edgesB, *adjA, *adjB, c.target(e), *out))
	})
}

func runCombine(args []string, stdout io.Writer) error {
	fs, c := newFlagSet("combine")
	files := fs.String("files", "", "Comma-separated edge files (required)")
	attr := fs.String("attr", equalisation.AttrThresholdAVal, "Edge map attribute giving each run's control value")
	out := fs.String("out", "", "Result file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"files": *files, "out": *out}); err != nil {
		return err
	}
	return c.withEqualiser(func(e *equalisation.Equaliser) error {
		return wrote(stdout, *out, e.CombineThresholdResults(parseCSVList(*files), *attr, *out))
	})
}

// wrote prints the result file of a successful stage.
func wrote(stdout io.Writer, out string, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", out)
	return nil
}
