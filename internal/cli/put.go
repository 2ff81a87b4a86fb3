package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
	"github.com/kronuz/fqueue/pkg/fqueue"
)

// PutCmd appends a record to the queue named by the global --name flag (or
// config file).
func PutCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("put", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "put <value>",
		Short: "Append a record to the queue",
		Long:  "Append <value>, read as-is as the record payload, to the queue and fsync it before returning.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("put requires exactly one <value> argument")
			}
			if cfg.Name == "" {
				return errors.New("no queue name given - pass --name or set \"name\" in a config file")
			}

			q, err := fqueue.Open(cfg.Options())
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			defer func() { _ = q.Close() }()

			if err := q.PutContext(ctx, []byte(args[0])); err != nil {
				return fmt.Errorf("put: %w", err)
			}

			o.Println("ok")
			return nil
		},
	}
}
