// robocop is the Ryujinx support bot: it answers log uploads in the support
// channels with an analysis report, serves FAQ commands and keeps the
// reaction role menu in sync.
//
// Usage:
//
//	robocop serve
//	robocop analyze <file|url> [--json] [--author=<name>]
//	robocop denylist list|check|add|remove ...
//	robocop history [--days=N] [--limit=N] [--failed] [--stats]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitSuccess
}

func versionString() string {
	v := version
	if gitCommit != "unknown" {
		v += fmt.Sprintf("\n  commit: %s", gitCommit)
	}
	if buildTime != "unknown" {
		v += fmt.Sprintf("\n  built:  %s", buildTime)
	}
	return v
}
