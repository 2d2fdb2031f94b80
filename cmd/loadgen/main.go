// Command loadgen submits generated CRM records to a running crmscore
// service and verifies the scores, leaderboard and summary it serves.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/crmscore/internal/loadgen"
	"github.com/okian/crmscore/pkg/logger"
)

const (
	defaultEntities      = 1000
	defaultOppsPerEntity = 3
	defaultTopN          = 50
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultWaitTimeout   = 2 * time.Minute
	defaultPollInterval  = 250 * time.Millisecond
	defaultRunTimeout    = 10 * time.Minute
	logFilePermission    = 0o600
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities  = flag.Int("entities", defaultEntities, "Number of entities to generate")
		opps      = flag.Int("opps", defaultOppsPerEntity, "Opportunities per entity")
		topN      = flag.Int("top", defaultTopN, "Leaderboard entries to verify")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent HTTP requests")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait      = flag.Duration("wait", defaultWaitTimeout, "How long to wait for events to be applied")
		seed      = flag.Uint64("seed", 0, "Generator seed (0 uses the clock)")
		output    = flag.String("output", "", "Write generated events to this JSON file")
		logFile   = flag.String("log", "", "Also write logs to this file")
		logFormat = flag.String("log-format", "text", "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	closeLog, err := setupLogging(*logFormat, *logFile, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup logging:", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	stats, err := loadgen.Run(ctx, &loadgen.Config{
		BaseURL:                *baseURL,
		Entities:               *entities,
		OpportunitiesPerEntity: *opps,
		TopN:                   *topN,
		Workers:                max(1, *workers),
		Timeout:                *timeout,
		WaitTimeout:            *wait,
		PollInterval:           defaultPollInterval,
		Seed:                   *seed,
		OutputFile:             *output,
	})
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
	fmt.Printf("events: %d generated, %d accepted, %d duplicate, %d failed\n",
		stats.EventsGenerated, stats.EventsAccepted, stats.EventsDuplicate, stats.EventsFailed)
	fmt.Printf("ranks checked: %d, leaderboard entries: %d, duration: %s\n",
		stats.RanksChecked, stats.LeaderboardEntries, stats.Duration.Round(time.Millisecond))
}

func setupLogging(format, logFile string, verbose bool) (func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	if err := logger.InitWithFormat(format, w); err != nil {
		closeFn()
		return nil, err
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			closeFn()
			return nil, err
		}
	}
	return closeFn, nil
}
