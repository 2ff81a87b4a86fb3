// fqsh is an interactive readline shell for a fqueue.Queue.
//
// Usage:
//
//	fqsh [flags] <queue-name>
//
// Commands (in REPL):
//
//	put <value>     Append a record
//	get             Remove and print the oldest unread record (blocks)
//	peek            Like get, but non-blocking; fails with "empty" on a fresh queue
//	stat            Show write/read positions and pending count
//	history         Show command history for this session
//	help            Show this help
//	exit / quit / q Exit
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/kronuz/fqueue/internal/config"
	"github.com/kronuz/fqueue/pkg/fqueue"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fqsh", flag.ContinueOnError)
	flagConfig := fs.StringP("config", "c", "", "Use specified config file")
	flagBackend := fs.String("backend", "", "IPC backend: auto, sysv, or file")
	flagBucketSize := fs.Int64("bucket-size", 0, "Bucket rotation threshold in bytes")
	flagCompression := fs.String("compression", "", "Payload compression: deflate or none")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fqsh [flags] <queue-name>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing queue name")
	}
	name := fs.Arg(0)

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	cliOverrides := config.Config{
		Name:        name,
		BucketSize:  *flagBucketSize,
		Backend:     *flagBackend,
		Compression: *flagCompression,
	}

	cfg, _, err := config.Load(workDir, *flagConfig, cliOverrides, os.Environ())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	q, err := fqueue.Open(cfg.Options())
	if err != nil {
		return fmt.Errorf("opening queue %q: %w", name, err)
	}
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	repl := &REPL{queue: q, name: name, ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- repl.Run() }()

	select {
	case err := <-done:
		return err
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\nshutting down, waiting up to 5s for the in-flight command...")
		cancel()
	}

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		fmt.Fprintln(os.Stderr, "graceful shutdown timed out, forced exit")
		return nil
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "shutdown interrupted, forced exit")
		return nil
	}
}

// REPL is the interactive command loop. ctx is cancelled on SIGINT/SIGTERM
// and threaded into every blocking command so a signal received mid-get or
// mid-put unblocks it instead of leaving the process to wait out the
// queue's own indefinite timeout.
type REPL struct {
	queue   *fqueue.Queue
	name    string
	ctx     context.Context
	liner   *liner.State
	history []string
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fqsh_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("fqsh - fqueue shell (queue=%s)\n", r.name)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("fqsh> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)
		r.history = append(r.history, line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet()

		case "peek":
			r.cmdPeek()

		case "stat":
			r.cmdStat()

		case "history":
			r.cmdHistory()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		case "gc":
			r.cmdGC()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "peek", "stat", "gc",
		"history", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <value>   Append a record")
	fmt.Println("  get           Remove and print the oldest unread record (blocks)")
	fmt.Println("  peek          Like get, but non-blocking")
	fmt.Println("  stat          Show write/read positions and pending count")
	fmt.Println("  gc            Reclaim fully-consumed bucket files")
	fmt.Println("  history       Show command history for this session")
	fmt.Println("  help          Show this help")
	fmt.Println("  exit / quit / q  Exit")
}

func (r *REPL) cmdPut(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: put <value>")
		return
	}
	value := strings.Join(args, " ")
	if err := r.queue.PutContext(r.ctx, []byte(value)); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdGet() {
	value, err := r.queue.GetContext(r.ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(value))
}

func (r *REPL) cmdPeek() {
	value, err := r.queue.GetNonBlocking()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(value))
}

func (r *REPL) cmdStat() {
	st, err := r.queue.Stat()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("write: bucket=%d offset=%d\n", st.WriteBucket, st.WriteOffset)
	fmt.Printf("read:  bucket=%d offset=%d\n", st.ReadBucket, st.ReadOffset)
	if st.PendingKnown {
		fmt.Printf("pending: %d\n", st.PendingApprox)
	} else {
		fmt.Println("pending: unknown")
	}
}

func (r *REPL) cmdGC() {
	if err := r.queue.GC(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdHistory() {
	for i, line := range r.history {
		fmt.Printf("%4d  %s\n", i+1, line)
	}
}
