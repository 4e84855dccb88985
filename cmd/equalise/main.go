// Command equalise runs the threshold equalisation of a pixel detector,
// either one stage at a time or as a resumable pipeline over a manifest of
// scans.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/equalisation/internal/equalisation"
	"github.com/banshee-data/equalisation/internal/version"
)

// command is one subcommand.
type command struct {
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"edges":                {"Extract edge thresholds from a threshold 0 scan", runEdges},
	"populations":          {"Bin and fit chip populations of a per-pixel dataset", runPopulations},
	"shift":                {"Per-pixel edge shift between two edge files", runShift},
	"response":             {"Fit response lines across several result files", runResponse},
	"config-from-response": {"Invert response lines at a target", runConfigFromResponse},
	"threshold-n-opt":      {"Optimal threshold N per chip", runThresholdNOpt},
	"threshold-n-mask":     {"Threshold N selection mask from two runs", runThresholdNMask},
	"limits":               {"Per-chip outlier thresholds from chip populations", runLimits},
	"dac-pixel-opt":        {"DAC pixel code and resolution per chip", runDACPixelOpt},
	"control-bits":         {"Per-pixel DAC adjustment bits", runControlBits},
	"threshold-adj":        {"Combine control bits and mask into adjustment words", runThresholdAdj},
	"tweak":                {"Move adjustment words one step towards the target", runTweak},
	"select":               {"Keep the adjustment word closer to the target per pixel", runSelect},
	"combine":              {"Stack edge maps of several runs", runCombine},
	"analyse":              {"Per-chip unequalised counts and tail thresholds", runAnalyse},
	"push":                 {"Load chip registers from a result file", runPush},
	"report":               {"Write population plots and an HTML summary", runReport},
	"run":                  {"Run or resume the full pipeline over a manifest", runPipeline},
	"migrate":              {"Manage the schema of a result or ledger file", runMigrate},
}

// commandOrder is the order commands are listed in the usage text.
var commandOrder = []string{
	"edges", "populations", "shift", "response", "config-from-response",
	"threshold-n-opt", "threshold-n-mask", "limits", "dac-pixel-opt",
	"control-bits", "threshold-adj", "tweak", "select", "combine",
	"analyse", "push", "report", "run", "migrate",
}

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	os.Exit(dispatch(flag.Arg(0), flag.Args()[1:], os.Stdout, os.Stderr))
}

// dispatch runs one command and returns the process exit code. A pipeline
// waiting for a scan exits with 3 so that acquisition scripts can tell it
// apart from a failure.
func dispatch(name string, args []string, stdout, stderr io.Writer) int {
	switch name {
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help":
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", name)
		printUsage(stderr)
		return 1
	}
	if err := cmd.run(args, stdout); err != nil {
		var scan *equalisation.ScanRequiredError
		if errors.As(err, &scan) {
			fmt.Fprintf(stderr, "Waiting: %v\n", scan)
			return 3
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `equalise - threshold equalisation for pixel detectors

Usage: equalise <command> [options]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-22s %s\n", name, commands[name].summary)
	}
	fmt.Fprint(w, `  version                Show version
  help                   Show this help message

Common Flags:
  --config <file>        Equalisation tuning JSON (default: built-in defaults)
  --registers <file>     Register state file used by push commands

Run 'equalise <command> -h' for the flags of a command.
`)
}
