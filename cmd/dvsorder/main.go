package main

import (
	"fmt"
	"io"
	"log"
	"os"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "analyze",
		short: "Detect predictable ballot order in CVR exports",
		usage: "dvsorder analyze [flags] FILE|DIR...",
		long: `Analyze every batch of each CVR export (.csv, or .zip of JSON files)
and report which batches can be put back into the order the ballots were
cast. Directories are searched for .csv and .zip files, skipping paths
matched by the settings' exclude patterns.

Settings are read from --config or .dvsorder/settings.yaml.

Flags:
  --config FILE        settings file
  --detector NAME      override the detector (shuffle, sequence, auto)
  --generator NAME     override the generator (dotnet, msvc)
  --images             read .zip files as ballot-image archives
  --show-unshuffled    print the recovered cast order of vulnerable batches
  --out DIR            write a markdown bundle and verdicts.yaml
  --html FILE          write an HTML chart page
  --metrics FILE       write Prometheus metrics in textfile format
  --progress           show a progress bar while batches are analyzed
  --log-level LEVEL    debug, info, warn or error
`,
		run: runAnalyze,
	},
	{
		name:  "init",
		short: "Write .dvsorder/settings.yaml interactively",
		usage: "dvsorder init [--force]",
		long: `Prompt for the detector, generator, seed range and threshold and write
.dvsorder/settings.yaml in the current directory. Empty answers keep the
default shown in brackets.

Errors if the settings file already exists, unless --force is given.
`,
		run: runInit,
	},
	{
		name:  "shuffle",
		short: "Print the shuffle a generator produces for a seed",
		usage: "dvsorder shuffle --generator NAME --seed N --length N [--base ID]",
		long: `Print the permutation (final position → original position) produced by
the generator for one seed, and the record ids a batch starting at --base
would be stored in.
`,
		run: runShuffle,
	},
}

// stdout receives command output.
var stdout io.Writer = os.Stdout

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "dvsorder - ballot order exposure in cast vote records\n\n")
	fmt.Fprintf(w, "Usage:\n  dvsorder <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'dvsorder help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "dvsorder: unknown command %q\n\nRun 'dvsorder help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(stdout, args[1])
		} else {
			printUsage(stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'dvsorder help' for usage.", args[0])
}

func main() {
	log.SetFlags(0)
	if err := dispatch(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
