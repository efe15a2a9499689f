package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/bootstrap"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

func main() {
	var (
		job     string
		date    string
		timeout time.Duration
	)
	flag.StringVar(&job, "job", "all", "Job to run: lifecycle, renewal, recognition or all")
	flag.StringVar(&date, "date", "", "Business date YYYY-MM-DD (default: today in the scheduler time zone)")
	flag.DurationVar(&timeout, "timeout", time.Hour, "Maximum run time")
	flag.Parse()

	jobTypes, err := parseJob(job)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	asOf, err := parseAsOf(date, shared.SystemClock{}, cfg.Scheduler.Location())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	container, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	log := container.Logger

	exitCode := run(ctx, container.Jobs, jobTypes, asOf, log)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := container.Close(closeCtx); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}
	os.Exit(exitCode)
}

// jobRunner is the part of the job run service the command drives
type jobRunner interface {
	Run(ctx context.Context, jobType processing.JobType, asOf time.Time, trigger string) (*appsub.BatchResult, error)
}

// run executes the jobs in order and prints each result as JSON. The exit
// code is 1 when a run fails outright; per-record failures are queued for
// the next run and do not change it.
func run(ctx context.Context, runner jobRunner, jobTypes []processing.JobType, asOf time.Time, log *zap.Logger) int {
	exitCode := 0
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, jobType := range jobTypes {
		result, err := runner.Run(ctx, jobType, asOf, appsub.TriggerCLI)
		if err != nil {
			log.Error("Job failed",
				zap.String("job_type", jobType.String()),
				zap.String("as_of", shared.FormatDate(asOf)),
				zap.Error(err),
			)
			exitCode = 1
			if ctx.Err() != nil {
				break
			}
			continue
		}
		_ = enc.Encode(result)
	}
	return exitCode
}

func parseJob(job string) ([]processing.JobType, error) {
	if job == "all" {
		return processing.AllJobTypes, nil
	}
	for _, jt := range processing.AllJobTypes {
		if jt.String() == job {
			return []processing.JobType{jt}, nil
		}
	}
	return nil, fmt.Errorf("unknown job %q", job)
}

func parseAsOf(date string, clock shared.Clock, loc *time.Location) (time.Time, error) {
	if date == "" {
		return shared.TruncateDay(clock.Now().In(loc)), nil
	}
	return shared.ParseDate(date)
}
