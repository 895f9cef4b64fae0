package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/logsentinel/internal/server"
	"github.com/HerbHall/logsentinel/internal/version"
	"go.uber.org/zap"
)

const usage = `Usage: logsentinel <command> [-config file]

Commands:
  run        collect one window, score it, and report
  serve      run passes on the collector interval and serve the HTTP API
  baselines  print the persisted baselines as JSON
  reset      discard the persisted baselines
  version    print version information
`

// shutdownTimeout bounds plugin and server shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "run":
		os.Exit(runPass(args))
	case "serve":
		os.Exit(runServe(args))
	case "baselines":
		os.Exit(runBaselines(args, os.Stdout))
	case "reset":
		os.Exit(runReset(args, os.Stdout))
	case "version", "-version", "--version":
		fmt.Println(version.Info())
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// parseFlags parses the flags shared by every subcommand and returns the
// configuration path.
func parseFlags(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configPath, nil
}

// runPass performs a single fetch, score, save, and report cycle.
func runPass(args []string) int {
	configPath, err := parseFlags("run", args)
	if err != nil {
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx, configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	if err := a.reg.StartAll(ctx); err != nil {
		a.logger.Error("failed to start plugins", zap.Error(err))
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		a.reg.StopAll(stopCtx)
	}()

	w, err := a.collector.Collect(ctx)
	if err != nil {
		a.logger.Error("log fetch failed, pass skipped", zap.Error(err))
		return 1
	}

	v, err := a.insight.Process(ctx, w)
	if err != nil {
		a.logger.Error("pass failed", zap.Error(err))
		return 1
	}

	a.logger.Info("pass complete",
		zap.String("verdict_id", v.ID),
		zap.String("classification", v.Classification),
		zap.Bool("alert", v.Alert),
	)
	return 0
}

// runServe runs passes on the collector schedule behind the HTTP API until
// SIGINT or SIGTERM.
func runServe(args []string) int {
	configPath, err := parseFlags("serve", args)
	if err != nil {
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bootstrap(ctx, configPath, map[string]any{"plugins.collector.schedule": true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	a.logger.Info("LogSentinel server starting", zap.String("version", version.Short()))

	serverCfg := server.DefaultConfig()
	if err := a.cfg.Sub("server").Unmarshal(&serverCfg); err != nil {
		a.logger.Error("invalid server configuration", zap.Error(err))
		return 1
	}

	if err := a.reg.StartAll(ctx); err != nil {
		a.logger.Error("failed to start plugins", zap.Error(err))
		return 1
	}

	srv := server.New(serverCfg, a.reg, a.logger, a.ready)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	a.logger.Info("LogSentinel server ready", zap.String("addr", serverCfg.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	code := 0
	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server error", zap.Error(err))
			code = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	a.reg.StopAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.logger.Info("LogSentinel server stopped")
	return code
}

// runBaselines writes the persisted baselines to out as indented JSON.
func runBaselines(args []string, out io.Writer) int {
	configPath, err := parseFlags("baselines", args)
	if err != nil {
		return 2
	}

	a, err := bootstrap(context.Background(), configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.insight.Baselines()); err != nil {
		a.logger.Error("encode baselines", zap.Error(err))
		return 1
	}
	return 0
}

// runReset discards the persisted baselines.
func runReset(args []string, out io.Writer) int {
	configPath, err := parseFlags("reset", args)
	if err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	if err := a.insight.Reset(ctx); err != nil {
		a.logger.Error("reset failed", zap.Error(err))
		return 1
	}
	fmt.Fprintln(out, "baselines reset")
	return 0
}
