package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hanpama/mongoview/internal/metrics"
	"github.com/hanpama/mongoview/internal/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		Long:  "Serve the HTTP trigger API that materializes and recomputes views on request.",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			flags := cmd.Flags()
			mustBindPFlag(serverAddrConf, flags.Lookup("addr"))
			mustBindPFlag(serverTimeoutConf, flags.Lookup("timeout"))
			mustBindPFlag(serverPrettyConf, flags.Lookup("pretty"))
			mustBindPFlag(serverMaxBodyConf, flags.Lookup("max-body-bytes"))
		},
		RunE: runServe,
	}

	// NOTE: if you add a new flag here, add the binding in PreRun
	flags := cmd.Flags()
	flags.String("addr", ":8080", "the address to listen on")
	flags.Duration("timeout", 10*time.Minute, "default timeout for a trigger request")
	flags.Bool("pretty", false, "indent JSON responses")
	flags.Int64("max-body-bytes", 1<<20, "maximum request body size")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return err
	}
	defer m.Subscribe()()

	opts := []server.Option{
		server.WithTimeout(viper.GetDuration(serverTimeoutConf)),
		server.WithMaxBodyBytes(viper.GetInt64(serverMaxBodyConf)),
		server.WithMetricsHandler(metrics.Handler(reg)),
		server.WithLogger(env.log),
	}
	if viper.GetBool(serverPrettyConf) {
		opts = append(opts, server.WithPretty())
	}
	h, err := server.New(env.views, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              viper.GetString(serverAddrConf),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		env.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	env.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
