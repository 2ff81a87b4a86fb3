package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kronuz/fqueue/internal/config"
)

// ConfigCmd prints the fully-resolved configuration (defaults overlaid with
// global config, project config, and CLI flags) as JSON.
func ConfigCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "config",
		Short: "Print the fully-resolved configuration",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errors.New("config takes no positional arguments")
			}

			out, err := config.Format(cfg)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			o.Println(out)
			return nil
		},
	}
}
