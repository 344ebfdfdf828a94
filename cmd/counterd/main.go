package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aetos-counter/go-backend/internal/app"
	"aetos-counter/go-backend/internal/config"
	"aetos-counter/go-backend/internal/doctor"
	"aetos-counter/go-backend/internal/platform/logging"
	"aetos-counter/go-backend/internal/platform/otel"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/internal/tui"
	"aetos-counter/go-backend/internal/wallet"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const serviceName = "counterd"

var (
	configPath string
	verbose    bool
	rpcAddr    string
	rpcToken   string
	jsonOutput bool
	skipListen bool
)

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Counter contract backend for Stacks",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve JSON-RPC and the snapshot stream to a local UI",
	RunE:  runServe,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the counter once and print it",
	RunE:  runRead,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI",
	RunE:  runTUI,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, API reachability and the wallet bridge",
	RunE:  runDoctor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version=%s commit=%s build_date=%s\n", serviceName, version, commit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to counter.yaml (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&rpcAddr, "rpc-addr", "", "JSON-RPC listen address (overrides config)")
	serveCmd.Flags().StringVar(&rpcToken, "rpc-token", "", "RPC token for Authorization/X-Counter-RPC-Token, or \"auto\"")
	readCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the snapshot as JSON")
	doctorCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	doctorCmd.Flags().BoolVar(&skipListen, "skip-listen", false, "Do not check that the RPC address is free")

	rootCmd.AddCommand(serveCmd, readCmd, tuiCmd, doctorCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if rpcAddr != "" {
		cfg.RPC.Addr = rpcAddr
	}
	if rpcToken != "" {
		cfg.RPC.Token = rpcToken
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, flush, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	shutdownTracing, err := otel.Setup(ctx, serviceName)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	srv, _, err := app.NewRPCServer(cfg, app.WithLogger(logger), app.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	logger.Info("counterd starting", "version", version, "rpc_addr", srv.Addr(), "contract", cfg.Contract.ID())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("counterd stopped")
	return nil
}

func runRead(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, flush, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer flush()

	svc, err := app.New(cfg, app.WithLogger(logger), app.WithVersion(version))
	if err != nil {
		return err
	}
	snap := svc.RefreshCounter(cmd.Context())
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	fmt.Fprintf(out, "contract:    %s\n", snap.Contract)
	fmt.Fprintf(out, "count:       %s\n", snap.ValueString("unknown"))
	lastCaller := snap.LastCaller
	if lastCaller == "" {
		lastCaller = "unknown"
	}
	fmt.Fprintf(out, "last caller: %s\n", lastCaller)
	if !snap.ValueKnown() {
		return fmt.Errorf("counter value could not be read from %s", cfg.API.BaseURL)
	}
	return nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The terminal belongs to the UI; logs go to the configured file or nowhere.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Logging.File != "" {
		fileLogger, flush, err := logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		defer flush()
		logger = fileLogger
	}

	svc, err := app.New(cfg, app.WithLogger(logger), app.WithVersion(version))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(stopCtx)
	}()
	return tui.Run(ctx, svc)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc := doctor.New(
		stacks.NewClient(cfg.API),
		wallet.NewRPCLoader(cfg.Wallet.Bridge, cfg.StacksNetwork()),
	)
	report := doc.Run(cmd.Context(), doctor.Input{Config: cfg, SkipListen: skipListen})

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			mark := "ok  "
			if !c.Pass {
				mark = "FAIL"
			}
			fmt.Fprintf(out, "%s %s", mark, c.Name)
			if c.Reason != "" {
				fmt.Fprintf(out, ": %s", c.Reason)
			}
			fmt.Fprintln(out)
		}
	}
	if !report.Ready {
		return errors.New("not ready")
	}
	return nil
}
