// pktlink is the CLI entry point.
//
// pktlink runs either side of a framed packet link over TCP, WebSocket or a
// WebRTC DataChannel. The server relays packets (echo, broadcast or log);
// the client sends stdin lines and prints what comes back.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the serve and dial subcommands.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/1ureka/pktlink/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
