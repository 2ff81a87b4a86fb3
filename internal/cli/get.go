package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
	"github.com/kronuz/fqueue/pkg/fqueue"
)

// GetCmd removes and prints the oldest unread record.
func GetCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	nonBlock := flags.BoolP("non-block", "n", false, "Fail immediately with Empty instead of waiting")
	timeout := flags.Duration("timeout", 0, "Give up waiting after this long (0 = wait indefinitely unless --non-block)")

	return &Command{
		Flags: flags,
		Usage: "get [flags]",
		Short: "Remove and print the oldest unread record",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errors.New("get takes no positional arguments")
			}
			if cfg.Name == "" {
				return errors.New("no queue name given - pass --name or set \"name\" in a config file")
			}

			q, err := fqueue.Open(cfg.Options())
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			defer func() { _ = q.Close() }()

			var value []byte
			switch {
			case *nonBlock:
				value, err = q.GetNonBlocking()
			case *timeout > 0:
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, *timeout)
				defer cancel()
				value, err = q.GetContext(ctx)
			default:
				value, err = q.GetContext(ctx)
			}
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}

			o.Println(string(value))
			return nil
		},
	}
}
