// Command deltac validates interception plans, runs dispatch scenarios and
// inspects the artifact store of emitted types.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/tinylit/DeltaExpression/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Commands print their own output; errors they did not report
		// (flag parsing, invalid --format) still need a message.
		if _, ok := err.(*cli.ExitError); !ok {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
