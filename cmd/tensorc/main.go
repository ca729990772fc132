// Command tensorc compiles index-notation kernels over sparse and dense
// tensors to loop IR and runs conformance scenarios against them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/tensorc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
