package main

import (
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/banshee-data/equalisation/internal/config"
	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/registers"
	"github.com/banshee-data/equalisation/internal/store"
)

// common holds the flags every command accepts.
type common struct {
	fs        *flag.FlagSet
	config    string
	registers string
	eqTarget  float64
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &common{fs: fs}
	fs.StringVar(&c.config, "config", "", "Equalisation tuning JSON (default: built-in defaults)")
	fs.StringVar(&c.registers, "registers", "", "Register state file used by push commands")
	return fs, c
}

// addTarget registers the --eq-target flag.
func (c *common) addTarget() {
	c.fs.Float64Var(&c.eqTarget, "eq-target", 0, "Equalisation target edge (default: config eq_target)")
}

// target returns --eq-target when given, otherwise the configured target.
func (c *common) target(e *equalisation.Equaliser) float64 {
	set := false
	c.fs.Visit(func(f *flag.Flag) {
		if f.Name == "eq-target" {
			set = true
		}
	})
	if set {
		return c.eqTarget
	}
	return e.Config().GetEqTarget()
}

func (c *common) loadConfig() (*config.EqualisationConfig, error) {
	if c.config == "" {
		return config.DefaultEqualisationConfig(), nil
	}
	return config.LoadEqualisationConfig(c.config)
}

// equaliser builds the Equaliser for a command. The returned close function
// releases the register file, if one was opened.
func (c *common) equaliser() (*equalisation.Equaliser, func() error, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	var opts []equalisation.Option
	closeFn := func() error { return nil }
	if c.registers != "" {
		f, err := store.Open(c.registers)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, equalisation.WithWriter(registers.NewRecorder(f)))
		closeFn = f.Close
	}
	e, err := equalisation.New(nil, cfg, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return e, closeFn, nil
}

// withEqualiser runs fn with the command's Equaliser and closes it after.
func (c *common) withEqualiser(fn func(e *equalisation.Equaliser) error) (err error) {
	e, closeFn, err := c.equaliser()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()
	return fn(e)
}

// required returns an error naming every empty flag.
func required(flags map[string]string) error {
	var missing []string
	for name, v := range flags {
		if v == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseCSVList splits a comma-separated list of paths.
func parseCSVList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
