package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
	"github.com/kronuz/fqueue/pkg/fqueue"
)

// StatCmd prints the queue's current write/read positions and approximate
// pending-record count.
func StatCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("stat", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "stat",
		Short: "Print the queue's write/read positions and pending count",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errors.New("stat takes no positional arguments")
			}
			if cfg.Name == "" {
				return errors.New("no queue name given - pass --name or set \"name\" in a config file")
			}

			q, err := fqueue.Open(cfg.Options())
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			defer func() { _ = q.Close() }()

			st, err := q.Stat()
			if err != nil {
				return fmt.Errorf("stat: %w", err)
			}

			o.Printf("write: bucket=%d offset=%d\n", st.WriteBucket, st.WriteOffset)
			o.Printf("read:  bucket=%d offset=%d\n", st.ReadBucket, st.ReadOffset)
			if st.PendingKnown {
				o.Printf("pending: %d\n", st.PendingApprox)
			} else {
				o.Println("pending: unknown")
			}
			return nil
		},
	}
}
