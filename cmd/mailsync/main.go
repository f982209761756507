// Command mailsync reads a mailbox page by page, fetches message details in
// batches and prints the merged result.
//
// Usage:
//
//	mailsync [messages|contacts]
//
// Configuration is read from MAILSYNC_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/mailbox-sync/pkg/config"
	"github.com/Sternrassler/mailbox-sync/pkg/contacts"
	"github.com/Sternrassler/mailbox-sync/pkg/engine"
	"github.com/Sternrassler/mailbox-sync/pkg/logging"
	"github.com/Sternrassler/mailbox-sync/pkg/mailbox"
	"github.com/Sternrassler/mailbox-sync/pkg/metrics"
	"github.com/Sternrassler/mailbox-sync/pkg/store"
)

// Exit codes.
const (
	exitOK         = 0
	exitFatal      = 1
	exitIncomplete = 2
)

const (
	modeMessages = "messages"
	modeContacts = "contacts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailsync: %v\n", err)
		stop()
		os.Exit(exitFatal)
	}

	code := run(ctx, os.Args[1:], cfg, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one mode and returns the process exit code.
func run(ctx context.Context, args []string, cfg config.Config, stdout, stderr io.Writer) int {
	mode := modeMessages
	if len(args) > 0 {
		mode = args[0]
	}
	if len(args) > 1 || (mode != modeMessages && mode != modeContacts) {
		fmt.Fprintln(stderr, "usage: mailsync [messages|contacts]")
		return exitFatal
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})
	logger := logging.NewLogger("mailsync")

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	if mode == modeContacts {
		return runContacts(ctx, cfg, stdout, logger)
	}
	return runMessages(ctx, cfg, stdout, logger)
}

func runMessages(ctx context.Context, cfg config.Config, stdout io.Writer, logger zerolog.Logger) int {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stdout, "ERROR: %v\n", err)
		return exitFatal
	}
	defer p.Close()

	engCfg := engine.DefaultConfig()
	engCfg.Batch.MaxBatchSize = cfg.Sync.MaxBatchSize
	engCfg.Batch.MaxConcurrency = cfg.Sync.MaxConcurrency
	engCfg.Batch.Timeout = cfg.Sync.DetailTimeout

	fmt.Fprintln(stdout, "Messages:")

	res, err := engine.Synchronize(ctx, p.summaries, p.details, engCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Sync failed")
		fmt.Fprintf(stdout, "An error occurred: %v\n", err)
		return exitFatal
	}

	printResult(stdout, res)
	if !res.Complete {
		return exitIncomplete
	}
	return exitOK
}

// printResult writes one "id snippet" line per message, newest first,
// followed by the failures and a summary line.
func printResult(w io.Writer, res *engine.Result) {
	records := res.Store.SortedBy(store.NewestFirst)
	for _, rec := range records {
		if rec.Fidelity == mailbox.FidelityDetail {
			fmt.Fprintf(w, "%s %s\n", rec.ID, rec.Detail.Snippet)
		} else {
			fmt.Fprintf(w, "%s\n", rec.ID)
		}
	}

	for _, f := range res.Failures {
		fmt.Fprintf(w, "ERROR: %v\n", f)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No messages found.")
	}

	fmt.Fprintf(w, "%d messages, %d failed, %d pages, %d batches in %s\n",
		len(records), len(res.Failures), res.Pages, res.Batches, res.Duration.Round(time.Millisecond))

	if !res.Complete {
		cause := res.Cause
		if cause == nil {
			cause = errors.New("cancelled")
		}
		fmt.Fprintf(w, "INCOMPLETE: %v\n", cause)
	}
}

func runContacts(ctx context.Context, cfg config.Config, stdout io.Writer, logger zerolog.Logger) int {
	if cfg.Provider != config.ProviderGmail {
		fmt.Fprintf(stdout, "ERROR: contacts require the %s provider\n", config.ProviderGmail)
		return exitFatal
	}

	httpClient, err := googleHTTPClient(ctx, cfg, contacts.Scopes, nil)
	if err != nil {
		fmt.Fprintf(stdout, "ERROR: %v\n", err)
		return exitFatal
	}

	reader, err := contacts.New(ctx, httpClient, contacts.Options{Endpoint: cfg.Gmail.Endpoint})
	if err != nil {
		fmt.Fprintf(stdout, "ERROR: %v\n", err)
		return exitFatal
	}

	groups, err := reader.ListGroups(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Listing contact groups failed")
		fmt.Fprintf(stdout, "An error occurred: %v\n", err)
		return exitFatal
	}
	fmt.Fprintln(stdout, "Groups:")
	for _, g := range groups {
		fmt.Fprintln(stdout, g.FormattedName)
	}

	people, err := reader.ListConnections(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Listing connections failed")
		fmt.Fprintf(stdout, "An error occurred: %v\n", err)
		return exitFatal
	}
	fmt.Fprintln(stdout, "Contacts:")
	for _, c := range people {
		name := c.DisplayName
		if name == "" && len(c.Emails) > 0 {
			name = c.Emails[0]
		}
		fmt.Fprintln(stdout, name)
	}
	return exitOK
}
