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

package taipan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/cursor"
	"github.com/blinklabs-io/taipan/event"
	ouroborosPkg "github.com/blinklabs-io/taipan/ouroboros"
	"github.com/blinklabs-io/taipan/retry"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 30 * time.Second

type Follower struct {
	eventBus      *event.EventBus
	cursor        *cursor.Store
	shutdownFuncs []func(context.Context) error
	cancelRun     context.CancelFunc
	config        Config
	mutex         sync.Mutex
	shutdownOnce  sync.Once
	ownsEventBus  bool
}

func New(cfg Config) (*Follower, error) {
	f := &Follower{
		config: cfg,
	}
	if err := f.configPopulateNetworkMagic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := f.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	f.eventBus = cfg.eventBus
	if f.eventBus == nil {
		f.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
		f.ownsEventBus = true
	}
	return f, nil
}

// EventBus returns the event bus used to deliver chain events
func (f *Follower) EventBus() *event.EventBus {
	return f.eventBus
}

func (f *Follower) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.mutex.Lock()
	f.cancelRun = cancel
	f.mutex.Unlock()
	// Configure tracing
	if f.config.tracing {
		if err := f.setupTracing(); err != nil {
			return err
		}
	}
	// Open cursor store
	if f.config.cursorEnabled {
		store, err := cursor.New(f.config.cursorDataDir, f.config.logger)
		if err != nil {
			return fmt.Errorf("failed to open cursor store: %w", err)
		}
		f.mutex.Lock()
		f.cursor = store
		f.mutex.Unlock()
		f.eventBus.SubscribeFunc(
			chainsync.BlockEventType,
			store.HandleBlockEvent,
		)
		f.eventBus.SubscribeFunc(
			chainsync.RollbackEventType,
			store.HandleRollbackEvent,
		)
	}
	clientFunc := f.config.clientFunc
	if clientFunc == nil {
		clientFunc = f.defaultClientFunc
	}
	sessionCfg := chainsync.SessionConfig{
		Logger:          f.config.logger,
		EventBus:        f.eventBus,
		NewClient:       clientFunc,
		DecodePoint:     f.config.decodePoint,
		Finalize:        f.config.finalize,
		PromRegistry:    f.config.promRegistry,
		IntersectPoints: f.config.intersectPoints,
		MinDepth:        f.config.minDepth,
		IntersectTip:    f.config.intersectTip,
	}
	if store := f.cursorStore(); store != nil {
		sessionCfg.PointSource = store
	}
	session := chainsync.NewSession(sessionCfg)
	tracer := otel.Tracer("github.com/blinklabs-io/taipan")
	op := func() error {
		attemptCtx, span := tracer.Start(runCtx, "chainsync.attempt")
		err := session.Run(attemptCtx)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return err
		case chainsync.IsRecoverable(err):
			return err
		default:
			// Fatal protocol errors end the run without a process-level
			// failure
			f.config.logger.Error("chainsync error", "error", err)
			f.config.logger.Warn(
				"unrecoverable error performing chainsync, will exit",
			)
			return nil
		}
	}
	err := retry.Do(runCtx, f.config.retryPolicy, f.config.logger, op)
	// A cancellation initiated by Stop is a clean shutdown
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return nil
	}
	return err
}

func (f *Follower) defaultClientFunc() (chainsync.Client, error) {
	client := ouroborosPkg.NewClient(ouroborosPkg.ClientConfig{
		Logger:       f.config.logger,
		SocketPath:   f.config.socketPath,
		Address:      f.config.address,
		NetworkMagic: f.config.networkMagic,
	})
	return client, nil
}

func (f *Follower) cursorStore() *cursor.Store {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.cursor
}

func (f *Follower) Stop() error {
	var err error
	f.shutdownOnce.Do(func() {
		err = f.shutdown()
	})
	return err
}

func (f *Follower) shutdown() error {
	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	f.config.logger.Debug("starting graceful shutdown")

	// Stop the active sync run
	f.mutex.Lock()
	cancelRun := f.cancelRun
	f.mutex.Unlock()
	if cancelRun != nil {
		cancelRun()
	}

	if store := f.cursorStore(); store != nil {
		if closeErr := store.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("cursor close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range f.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	f.shutdownFuncs = nil

	if f.ownsEventBus && f.eventBus != nil {
		f.eventBus.Stop()
	}

	f.config.logger.Debug("graceful shutdown complete")
	return err
}
