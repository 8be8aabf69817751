// Package main starts the chronicler offline pipeline driver.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	chroniclercmd "github.com/louisbranch/chronicler/internal/cmd/chronicler"
	"github.com/louisbranch/chronicler/internal/platform/config"
)

func main() {
	log.SetPrefix("[CHRONICLER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := chroniclercmd.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		config.Exitf("chronicler: %v", err)
	}
}
