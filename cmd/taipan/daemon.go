// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/taipan"
	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/internal/config"
	"github.com/blinklabs-io/taipan/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func daemonRun(_ *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()

	// Run follower
	if err := runFollower(cfg, logger); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func daemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the chain follower",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			daemonRun(cmd, args, cfg)
		},
	}
	return cmd
}

// finalizeConfig converts the finalize config section, returning nil
// when no stop condition is configured
func finalizeConfig(cfg *config.Config) (*chainsync.FinalizeConfig, error) {
	if cfg.Finalize.UntilHash == "" && cfg.Finalize.MaxBlocks == 0 {
		return nil, nil
	}
	finalize := &chainsync.FinalizeConfig{
		MaxBlocks: cfg.Finalize.MaxBlocks,
	}
	if cfg.Finalize.UntilHash != "" {
		hash, err := hex.DecodeString(cfg.Finalize.UntilHash)
		if err != nil {
			return nil, fmt.Errorf("invalid finalize hash: %w", err)
		}
		finalize.UntilHash = hash
	}
	return finalize, nil
}

// retryPolicy builds the reconnect policy from config, starting from the
// defaults and overriding only the values the user set
func retryPolicy(cfg *config.Config) (retry.Policy, error) {
	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxRetries > 0 {
		policy.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.BackoffFactor > 0 {
		policy.BackoffFactor = cfg.Retry.BackoffFactor
	}
	if cfg.Retry.BackoffUnit != "" {
		unit, err := time.ParseDuration(cfg.Retry.BackoffUnit)
		if err != nil {
			return retry.Policy{}, fmt.Errorf(
				"invalid retry backoff unit: %w",
				err,
			)
		}
		policy.BackoffUnit = unit
	}
	if cfg.Retry.MaxBackoff != "" {
		maxBackoff, err := time.ParseDuration(cfg.Retry.MaxBackoff)
		if err != nil {
			return retry.Policy{}, fmt.Errorf(
				"invalid retry max backoff: %w",
				err,
			)
		}
		policy.MaxBackoff = maxBackoff
	}
	return policy, nil
}

func runFollower(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "follower")
	intersectPoints, err := cfg.Points()
	if err != nil {
		return err
	}
	finalize, err := finalizeConfig(cfg)
	if err != nil {
		return err
	}
	policy, err := retryPolicy(cfg)
	if err != nil {
		return err
	}
	opts := []taipan.ConfigOptionFunc{
		taipan.WithLogger(logger),
		taipan.WithNetwork(cfg.Network),
		taipan.WithNetworkMagic(cfg.NetworkMagic),
		taipan.WithAddress(cfg.Address),
		taipan.WithSocketPath(cfg.SocketPath),
		taipan.WithIntersectTip(cfg.IntersectTip),
		taipan.WithIntersectPoints(intersectPoints),
		taipan.WithMinDepth(cfg.MinDepth),
		taipan.WithRetryPolicy(policy),
		// Enable metrics with default prometheus registry
		taipan.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		taipan.WithTracing(cfg.Tracing),
		taipan.WithTracingStdout(cfg.TracingStdout),
	}
	if !cfg.DisableCursor {
		opts = append(opts, taipan.WithCursor(cfg.DataDir))
	}
	if finalize != nil {
		opts = append(opts, taipan.WithFinalize(finalize))
	}
	f, err := taipan.New(taipan.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"follower",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "follower",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run follower in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		err := f.Run(signalCtx)
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")

		// Shutdown metrics server
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}

		// Shutdown follower
		if err := f.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("follower stopped")
			// Graceful cleanup
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			if err := f.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("follower error", "error", err)
		signalCtxStop()

		// Shutdown follower resources
		if stopErr := f.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}

		// Cleanup on error
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("metrics server shutdown error", "error", shutdownErr)
		}

		return err
	}
}
