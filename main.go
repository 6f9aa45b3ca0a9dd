package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/cmd/inspect"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := inspect.Root().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
