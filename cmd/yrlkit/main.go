// yrlkit runs the steps of the Nheengatu embedding research pipeline: tokenizer inspection,
// Unicode normalization, dataset expansion, embedding extraction, cross-lingual validation and
// visualization.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/nheengatu-lab/yrlkit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
