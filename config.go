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
	"errors"
	"fmt"
	"io"
	"log/slog"

	ouroboros "github.com/blinklabs-io/gouroboros"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/event"
	"github.com/blinklabs-io/taipan/retry"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	eventBus        *event.EventBus
	finalize        *chainsync.FinalizeConfig
	clientFunc      func() (chainsync.Client, error)
	decodePoint     chainsync.DecodePointFunc
	network         string
	address         string
	socketPath      string
	cursorDataDir   string
	intersectPoints []ocommon.Point
	retryPolicy     retry.Policy
	minDepth        int
	networkMagic    uint32
	intersectTip    bool
	cursorEnabled   bool
	tracing         bool
	tracingStdout   bool
}

// ConfigOptionFunc is a type that represents functions that modify the Follower config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new taipan config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		network:     "mainnet",
		retryPolicy: retry.DefaultPolicy(),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// configPopulateNetworkMagic uses the named network (if specified) to determine the network magic value (if not specified)
func (f *Follower) configPopulateNetworkMagic() error {
	if f.config.networkMagic == 0 && f.config.network != "" {
		tmpCfg := f.config
		tmpNetwork, ok := ouroboros.NetworkByName(f.config.network)
		if !ok {
			return fmt.Errorf("unknown network name: %s", f.config.network)
		}
		tmpCfg.networkMagic = tmpNetwork.NetworkMagic
		f.config = tmpCfg
	}
	return nil
}

func (f *Follower) configValidate() error {
	if f.config.networkMagic == 0 {
		return fmt.Errorf(
			"invalid network magic value: %d",
			f.config.networkMagic,
		)
	}
	if f.config.clientFunc == nil &&
		f.config.socketPath == "" &&
		f.config.address == "" {
		return errors.New("no node address or socket path defined")
	}
	if f.config.minDepth < 0 {
		return fmt.Errorf("invalid min depth value: %d", f.config.minDepth)
	}
	return nil
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithNetwork specifies the named network to sync from. This will automatically set the appropriate network magic value. The default is mainnet
func WithNetwork(network string) ConfigOptionFunc {
	return func(c *Config) {
		c.network = network
	}
}

// WithNetworkMagic specifies the network magic value to use. This will override any named network specified
func WithNetworkMagic(networkMagic uint32) ConfigOptionFunc {
	return func(c *Config) {
		c.networkMagic = networkMagic
	}
}

// WithAddress specifies a TCP address (host:port) to use for the node-to-client connection, for nodes that expose
// their UNIX socket over TCP via socat or similar
func WithAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.address = address
	}
}

// WithSocketPath specifies the UNIX socket path of a local node to use for the node-to-client connection. This takes
// precedence over any TCP address specified
func WithSocketPath(socketPath string) ConfigOptionFunc {
	return func(c *Config) {
		c.socketPath = socketPath
	}
}

// WithIntersectPoints specifies intersect point(s) for the initial chainsync. The default is to start at chain genesis
func WithIntersectPoints(points []ocommon.Point) ConfigOptionFunc {
	return func(c *Config) {
		c.intersectPoints = points
	}
}

// WithSincePoint specifies a single point for the initial chainsync.
//
// Deprecated: Use WithIntersectPoints instead.
func WithSincePoint(point ocommon.Point) ConfigOptionFunc {
	return func(c *Config) {
		c.intersectPoints = append(c.intersectPoints, point)
	}
}

// WithIntersectTip specifies whether to start the initial chainsync at the current tip. The default is to start at chain genesis
func WithIntersectTip(intersectTip bool) ConfigOptionFunc {
	return func(c *Config) {
		c.intersectTip = intersectTip
	}
}

// WithMinDepth specifies the number of newer blocks required on top of a block before it is confirmed and emitted.
// The default is to emit blocks as soon as they arrive
func WithMinDepth(minDepth int) ConfigOptionFunc {
	return func(c *Config) {
		c.minDepth = minDepth
	}
}

// WithFinalize specifies conditions under which the follower stops cleanly on its own
func WithFinalize(finalize *chainsync.FinalizeConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.finalize = finalize
	}
}

// WithRetryPolicy overrides the default backoff policy used to retry recoverable chainsync failures
func WithRetryPolicy(policy retry.Policy) ConfigOptionFunc {
	return func(c *Config) {
		c.retryPolicy = policy
	}
}

// WithEventBus specifies the event bus to publish chainsync events on. The default is to create one, available
// via the EventBus method on the Follower
func WithEventBus(eventBus *event.EventBus) ConfigOptionFunc {
	return func(c *Config) {
		c.eventBus = eventBus
	}
}

// WithCursor enables the durable cursor store in the given data directory. The stored point is used as an intersect
// candidate on startup. An empty dataDir stores the cursor in memory
func WithCursor(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.cursorEnabled = true
		c.cursorDataDir = dataDir
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithClientFunc specifies a factory for the chainsync transport client, called once per connection attempt.
// The default builds a gouroboros node-to-client connection from the configured network and address
func WithClientFunc(
	clientFunc func() (chainsync.Client, error),
) ConfigOptionFunc {
	return func(c *Config) {
		c.clientFunc = clientFunc
	}
}
