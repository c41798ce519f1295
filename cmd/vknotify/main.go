package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vknotify/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		cancel()
		os.Exit(app.ExitCode(err))
	}
}
