// Command bookbatch loads books from an XML file into the book table and a delimited file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The job context is cancelled on SIGINT/SIGTERM so that the running step stops at the next chunk boundary.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Errorf("bookbatch: %v", err)
		cancel()
		os.Exit(1)
	}
}
