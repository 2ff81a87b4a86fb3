// Package main provides fq, a CLI for a persistent filesystem-backed FIFO
// queue.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kronuz/fqueue/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdout, os.Stderr, os.Args, os.Environ(), sigCh)

	os.Exit(exitCode)
}
