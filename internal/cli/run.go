package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const helpFlag = "--help"

// Run is the main entry point. Returns exit code. Cancellation via
// sigCh aborts in-flight wiki requests; a second signal is not needed.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	cfg, err := LoadConfig(workDir, flags.configPath, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if flags.spaceKey != "" {
		cfg.SpaceKey = flags.spaceKey
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cmd := flags.remaining[0]
	if cmd == "-h" || cmd == helpFlag {
		printUsage(out)

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			<-sigCh
			fprintln(errOut, "\ninterrupted, aborting")
			cancel()
		}()
	}

	ioCtx := NewIO(out, errOut)
	run := runEnv{cfg: cfg, in: in, verbose: flags.verbose, workDir: workDir}

	var cmdErr error

	switch cmd {
	case "publish":
		cmdErr = cmdPublish(ctx, ioCtx, run, flags.remaining[1:])
	case "sort":
		cmdErr = cmdSort(ctx, ioCtx, run, flags.remaining[1:])
	case "delete":
		cmdErr = cmdDelete(ctx, ioCtx, run, flags.remaining[1:])
	case "copy":
		cmdErr = cmdCopy(ctx, ioCtx, run, flags.remaining[1:])
	case "tree":
		cmdErr = cmdTree(ctx, ioCtx, run, flags.remaining[1:])
	case "print-config":
		cmdErr = cmdPrintConfig(ioCtx, cfg)
	default:
		fprintln(errOut, "error: unknown command:", cmd)
		printUsage(errOut)

		return 1
	}

	if cmdErr != nil {
		fprintln(errOut, "error:", cmdErr)

		return 1
	}

	return ioCtx.Finish()
}

// runEnv bundles what every subcommand needs besides its own flags.
type runEnv struct {
	cfg     Config
	in      io.Reader
	verbose bool
	workDir string
}

type globalFlags struct {
	workDir    string
	configPath string
	spaceKey   string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args
// consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return 2, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return 1, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return 0, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.configPath = args[idx+1]

		return 2, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return 1, nil
	}

	// -s/--space flag
	if arg == "-s" || arg == "--space" {
		if idx+1 >= len(args) {
			return 0, fmt.Errorf("flag requires an argument: %s", arg)
		}

		flags.spaceKey = args[idx+1]

		return 2, nil
	}

	if after, ok := strings.CutPrefix(arg, "--space="); ok {
		flags.spaceKey = after

		return 1, nil
	}

	if arg == "-v" || arg == "--verbose" {
		flags.verbose = true

		return 1, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return 0, fmt.Errorf("unknown flag: %s", arg)
	}

	// Not a flag
	return 0, nil
}

func cmdPrintConfig(o *IO, cfg Config) error {
	formatted, err := FormatConfig(cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)

	o.Println("")
	o.Println("# Sources:")

	if cfg.Sources.Global != "" {
		o.Println("#   global:", cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("#   project:", cfg.Sources.Project)
	}

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("#   (using defaults only)")
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func fprintf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == helpFlag {
			return true
		}
	}

	return false
}

func printUsage(writer io.Writer) {
	fprintln(writer, `wikisync - publish and maintain wiki page hierarchies

Usage: wikisync [options] <command> [args]

Options:
  -C, --cwd <dir>    Run as if started in <dir>
  -c, --config       Use specified config file
  -s, --space        Space key (overrides config)
  -v, --verbose      Log every wiki request to stderr

Commands:`)
	fprintln(writer, publishHelp)
	fprintln(writer, sortHelp)
	fprintln(writer, deleteHelp)
	fprintln(writer, copyHelp)
	fprintln(writer, treeHelp)
	fprintln(writer, `  print-config           Show resolved configuration`)
}
