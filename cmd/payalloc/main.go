package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/payalloc/cmd/payalloc/cli"
	"github.com/odyssey-erp/payalloc/internal/app"
	"github.com/odyssey-erp/payalloc/internal/platform/cache"
	"github.com/odyssey-erp/payalloc/internal/shared"
)

const usage = `usage: payalloc <command> [flags]

commands:
  run          compute invoices locally and print a summary
  enqueue      queue an invoice run for the worker
  queue        show job queue statistics
  flush-cache  queue a run cache invalidation
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = shared.ContextWithActor(ctx, os.Getenv("USER"))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runLocal(rest, stdout, stderr)
	case "enqueue", "queue", "flush-cache":
		return runQueued(ctx, cmd, rest, stdout, stderr)
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func runLocal(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.RunOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.PayrollPath, "payroll", "", "payroll register CSV")
	fs.StringVar(&opts.AllocationPath, "allocation", "", "allocation table (YAML or JSON)")
	fs.StringVar(&opts.Period, "period", "", "pay period label")
	fs.StringVar(&opts.LedgerPath, "ledger", "", "write the ledger CSV to this path")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the run as JSON")
	fs.BoolVar(&opts.Strict, "strict", false, "exit 10 when payroll employees are unmatched")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg, err := app.LoadConfig(); err == nil {
		opts.Logger = app.NewLogger(cfg)
	}
	return cli.RunCommand(opts)
}

func runQueued(ctx context.Context, cmd string, args []string, stdout, stderr io.Writer) int {
	if app.SkipStartup("payalloc " + cmd) {
		return 0
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.EnqueueOptions{Stdout: stdout, Stderr: stderr}
	if cmd == "enqueue" {
		fs.StringVar(&opts.PayrollPath, "payroll", "", "payroll register CSV")
		fs.StringVar(&opts.AllocationPath, "allocation", "", "allocation table (YAML or JSON)")
		fs.StringVar(&opts.Period, "period", "", "pay period label")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: load config: %v\n", cmd, err)
		return 1
	}
	logger := app.NewLogger(cfg)
	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpt(), cfg.JobMaxRetry)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch cmd {
	case "enqueue":
		return jobsCLI.EnqueueCommand(ctx, opts)
	case "flush-cache":
		return jobsCLI.FlushCacheCommand(ctx, stdout, stderr)
	default:
		return jobsCLI.QueueCommand(ctx, stdout, stderr)
	}
}
