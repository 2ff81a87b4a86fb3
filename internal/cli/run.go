package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
)

// Run is fq's entry point. sigCh can be nil if signal handling is not
// needed (e.g. in tests). Returns the process exit code.
func Run(out, errOut io.Writer, args []string, env []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("fq", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagName := globalFlags.String("name", "", "Queue path prefix (overrides config)")
	flagBackend := globalFlags.String("backend", "", "IPC backend: auto, sysv, or file")
	flagBucketSize := globalFlags.Int64("bucket-size", 0, "Bucket rotation threshold in bytes")
	flagSyncAge := globalFlags.Uint64("sync-age", 0, "Reads between durable position checkpoints")
	flagCompression := globalFlags.String("compression", "", "Payload compression: deflate or none")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)
		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fprintln(errOut, "error:", err)
			return 1
		}
		workDir = wd
	}

	cliOverrides := config.Config{
		Name:        *flagName,
		BucketSize:  *flagBucketSize,
		SyncAge:     *flagSyncAge,
		Backend:     *flagBackend,
		Compression: *flagCompression,
	}

	cfg, _, err := config.Load(workDir, *flagConfig, cliOverrides, env)
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)
		return 1
	}

	commands := allCommands(cfg)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)
		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)
		return 1
	}

	cmdName := commandAndArgs[0]
	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)
		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")
		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")
		return 130
	}
}

func allCommands(cfg config.Config) []*Command {
	return []*Command{
		PutCmd(cfg),
		GetCmd(cfg),
		StatCmd(cfg),
		GCCmd(cfg),
		ConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help               Show help
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
  --name <prefix>          Queue path prefix (overrides config)
  --backend <auto|sysv|file>  IPC backend
  --bucket-size <bytes>    Bucket rotation threshold
  --sync-age <n>           Reads between durable checkpoints
  --compression <deflate|none>  Payload compression`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: fq [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'fq --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "fq - a persistent filesystem-backed FIFO queue")
	fprintln(w)
	fprintln(w, "Usage: fq [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
