package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
	"github.com/kronuz/fqueue/pkg/fqueue"
)

// GCCmd reclaims bucket files that every reader has already fully consumed.
func GCCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("gc", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "gc",
		Short: "Reclaim fully-consumed bucket files",
		Long:  "Remove bucket files strictly below the current read bucket. The queue engine already does this as it reads; gc is for reclaiming space on demand, e.g. from a cron job.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errors.New("gc takes no positional arguments")
			}
			if cfg.Name == "" {
				return errors.New("no queue name given - pass --name or set \"name\" in a config file")
			}

			q, err := fqueue.Open(cfg.Options())
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			defer func() { _ = q.Close() }()

			if err := q.GC(); err != nil {
				return fmt.Errorf("gc: %w", err)
			}

			o.Println("ok")
			return nil
		},
	}
}
