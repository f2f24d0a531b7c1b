// Command vet runs the automated checks for one token and prints the report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-vetting/internal/app"
	"token-vetting/internal/config"
	"token-vetting/internal/domain"
	"token-vetting/internal/fixtures"
	"token-vetting/internal/marketdata/stub"
	"token-vetting/internal/reporting"
	"token-vetting/internal/storage"
	"token-vetting/internal/vetting"
)

type options struct {
	token   string
	force   bool
	show    bool
	format  string
	offline bool
}

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	var opts options
	flag.StringVar(&opts.token, "token", "", "token mint address (required)")
	flag.BoolVar(&opts.force, "force", false, "recompute even if a fresh verdict is stored")
	flag.BoolVar(&opts.show, "show", false, "print the stored verdict without running checks")
	flag.StringVar(&opts.format, "format", "md", "output format: json, md or csv")
	flag.BoolVar(&opts.offline, "offline", false, "serve market data from built-in fixtures instead of providers")
	flag.Parse()

	if opts.token == "" {
		fmt.Fprintln(os.Stderr, "Error: --token is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if kind := domain.KindOf(err); kind != domain.KindInternal {
			fmt.Fprintf(os.Stderr, "Kind: %s\n", kind)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, out io.Writer) error {
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	token, err := domain.ParseTokenID(opts.token)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	// Reports go to stdout; keep logs on stderr.
	logger.SetOutput(os.Stderr)

	var buildOpts []app.Option
	if opts.offline {
		market := stub.NewClient()
		for _, snap := range fixtures.Snapshots(time.Now()) {
			market.AddSnapshot(snap)
		}
		buildOpts = append(buildOpts, app.WithMarket(market))
	}

	engine, err := app.Build(ctx, cfg, logger, buildOpts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	var v *domain.Verdict
	if opts.show {
		v, err = engine.Service.GetVerdict(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no stored verdict for %s", token)
		}
	} else {
		var res *vetting.Result
		res, err = engine.Service.RunAutomatedChecks(ctx, token, vetting.RunOptions{ForceRefresh: opts.force})
		if res != nil {
			v = res.Verdict
		}
	}
	if err != nil {
		return err
	}

	history, err := engine.Service.History(ctx, token, storage.DefaultHistoryLimit)
	if err != nil {
		return err
	}
	body, err := reporting.Render(format, reporting.NewReport(v, history, time.Now()))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, body)
	return err
}
