package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ta2/internal/admin"
	"github.com/roach88/ta2/internal/server"
	"github.com/roach88/ta2/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigOptions
	Listen      string
	AdminListen string

	// ready, when set, receives the bound addresses once both listeners
	// are open (for testing).
	ready func(grpcAddr, adminAddr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TA2 gRPC server",
		Long: `Run the TA2 gRPC server and its HTTP admin endpoint.

Configuration is read from --config, then overridden by TA2_* environment
variables. The server stops gracefully on SIGINT or SIGTERM.

Example:
  ta2 serve --config ta2.yaml
  TA2_STORE_BACKEND=badger TA2_STORE_PATH=/var/lib/ta2 ta2 serve --listen :45042`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "gRPC listen address (overrides config)")
	cmd.Flags().StringVar(&opts.AdminListen, "admin-listen", "", "admin HTTP listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.AdminListen != "" {
		cfg.AdminListen = opts.AdminListen
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if err := rt.close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
	}()

	grpcLis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	var adminLis net.Listener
	if cfg.AdminListen != "" {
		if adminLis, err = net.Listen("tcp", cfg.AdminListen); err != nil {
			grpcLis.Close()
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
	}

	logger.Info("ta2 starting",
		"grpc", grpcLis.Addr().String(),
		"admin", cfg.AdminListen,
		"store", cfg.Store.Backend,
		"ids", cfg.IDs.Scheme)
	fmt.Fprintf(cmd.OutOrStdout(), "TA2 listening on %s\n", grpcLis.Addr())

	g, gctx := errgroup.WithContext(ctx)
	srv := server.New(rt.manager, rt.registry, server.WithLogger(logger))
	g.Go(func() error { return srv.Serve(gctx, grpcLis) })

	adminAddr := ""
	if adminLis != nil {
		adminAddr = adminLis.Addr().String()
		adm := admin.New(rt.manager, adminOptions(tel, rt, logger)...)
		g.Go(func() error { return adm.Serve(gctx, adminLis) })
	}
	if opts.ready != nil {
		opts.ready(grpcLis.Addr().String(), adminAddr)
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("ta2 stopped gracefully")
	return nil
}

func adminOptions(tel *telemetry.Telemetry, rt *runtime, logger *slog.Logger) []admin.Option {
	opts := []admin.Option{
		admin.WithLogger(logger),
		admin.WithReadiness(func(ctx context.Context) error {
			_, err := rt.backend.ListDocuments(ctx)
			return err
		}),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, admin.WithMetrics(h))
	}
	return opts
}
