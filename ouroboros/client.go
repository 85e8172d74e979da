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

package ouroboros

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	ouroboros "github.com/blinklabs-io/gouroboros"
	gledger "github.com/blinklabs-io/gouroboros/ledger"
	ochainsync "github.com/blinklabs-io/gouroboros/protocol/chainsync"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/blinklabs-io/taipan/chainsync"
)

const (
	defaultDialTimeout = 10 * time.Second

	chainsyncPipelineLimit = 50
)

// ErrClientClosed is returned for operations on a closed client.
var ErrClientClosed = errors.New("client closed")

// ClientConfig configures a node-to-client chainsync connection.
type ClientConfig struct {
	Logger *slog.Logger
	// SocketPath is the UNIX socket path of a local node. It takes
	// precedence over Address.
	SocketPath string
	// Address is a TCP address (host:port) of a node exposing the
	// node-to-client protocol set, such as via socat.
	Address      string
	NetworkMagic uint32
	DialTimeout  time.Duration
}

// Client is a chainsync.Client backed by a gouroboros node-to-client
// connection. Chainsync protocol callbacks push updates into an internal
// queue that RequestNext and AwaitNext drain, which adapts the
// callback-driven gouroboros API to a pull-based one.
type Client struct {
	config     ClientConfig
	updates    chan chainsync.NextUpdate
	done       chan struct{}
	connClosed chan struct{}
	mutex      sync.Mutex
	conn       *ouroboros.Connection
	connErr    error
	closed     bool
}

var _ chainsync.Client = (*Client)(nil)

// NewClient creates a Client from the provided config. The returned client
// does not connect to the node until Handshake is called.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "ouroboros")
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Client{
		config: cfg,
		// Size the update queue to match the recv queue on the ouroboros
		// connection so protocol callbacks rarely block
		updates:    make(chan chainsync.NextUpdate, 2*chainsyncPipelineLimit),
		done:       make(chan struct{}),
		connClosed: make(chan struct{}),
	}
}

// Handshake dials the node and negotiates the node-to-client protocol set.
// Failures are recoverable, since a node that refuses or drops the
// connection may accept it once it finishes starting up.
func (c *Client) Handshake() error {
	family := "tcp"
	address := c.config.Address
	if c.config.SocketPath != "" {
		family = "unix"
		address = c.config.SocketPath
	}
	if address == "" {
		return errors.New("no address or socket path configured")
	}
	c.config.Logger.Debug(
		"connecting to node",
		"family", family,
		"address", address,
	)
	conn, err := net.DialTimeout(family, address, c.config.DialTimeout)
	if err != nil {
		return chainsync.NewRecoverableError(
			fmt.Errorf("connecting to node %s: %w", address, err),
		)
	}
	oConn, err := ouroboros.NewConnection(
		ouroboros.WithConnection(conn),
		ouroboros.WithNetworkMagic(c.config.NetworkMagic),
		ouroboros.WithNodeToNode(false),
		ouroboros.WithChainSyncConfig(
			ochainsync.NewConfig(
				ochainsync.WithRollForwardFunc(c.handleRollForward),
				ochainsync.WithRollBackwardFunc(c.handleRollBackward),
				// Enable pipelining of RequestNext messages to speed up chainsync
				ochainsync.WithPipelineLimit(chainsyncPipelineLimit),
				// Set the recv queue size to 2x our pipeline limit
				ochainsync.WithRecvQueueSize(2*chainsyncPipelineLimit),
			),
		),
	)
	if err != nil {
		conn.Close()
		return chainsync.NewRecoverableError(
			fmt.Errorf("creating ouroboros connection: %w", err),
		)
	}
	c.mutex.Lock()
	if c.closed {
		// Close raced with the handshake
		c.mutex.Unlock()
		oConn.Close()
		return chainsync.NewRecoverableError(ErrClientClosed)
	}
	c.conn = oConn
	c.mutex.Unlock()
	go c.monitorConnection(oConn)
	return nil
}

// Intersect negotiates the chainsync starting point with the node. An
// empty point list starts from the node's current tip. The returned tip is
// the node's tip at the time of intersection.
func (c *Client) Intersect(
	points []ocommon.Point,
) (*ochainsync.Tip, error) {
	conn := c.connection()
	if conn == nil {
		return nil, errors.New("connection not established")
	}
	tip, err := conn.ChainSync().Client.GetCurrentTip()
	if err != nil {
		return nil, chainsync.NewRecoverableError(
			fmt.Errorf("querying current tip: %w", err),
		)
	}
	if len(points) == 0 {
		// Start initial chainsync from current chain tip
		points = []ocommon.Point{tip.Point}
	}
	if err := conn.ChainSync().Client.Sync(points); err != nil {
		if errors.Is(err, ochainsync.ErrIntersectNotFound) {
			return nil, chainsync.ErrIntersectNotFound
		}
		return nil, chainsync.NewRecoverableError(
			fmt.Errorf("starting sync: %w", err),
		)
	}
	return tip, nil
}

// RequestNext returns the next queued update without blocking. When the
// queue is empty it returns an Await update to signal that the caller
// should block on AwaitNext.
func (c *Client) RequestNext() (*chainsync.NextUpdate, error) {
	// Return any queued update before checking connection state so that
	// updates received before a failure are not lost
	select {
	case update := <-c.updates:
		return &update, nil
	default:
	}
	select {
	case <-c.connClosed:
		return nil, chainsync.NewRecoverableError(c.connectionError())
	case <-c.done:
		return nil, chainsync.NewRecoverableError(ErrClientClosed)
	default:
	}
	return &chainsync.NextUpdate{Kind: chainsync.NextUpdateAwait}, nil
}

// AwaitNext blocks until the node produces an update, the connection
// fails, or the client is closed.
func (c *Client) AwaitNext() (*chainsync.NextUpdate, error) {
	// Drain queued updates first
	select {
	case update := <-c.updates:
		return &update, nil
	default:
	}
	select {
	case update := <-c.updates:
		return &update, nil
	case <-c.connClosed:
		return nil, chainsync.NewRecoverableError(c.connectionError())
	case <-c.done:
		return nil, chainsync.NewRecoverableError(ErrClientClosed)
	}
}

// Close shuts down the connection. It's safe to call multiple times and
// before the handshake has completed.
func (c *Client) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	close(c.done)
	c.mutex.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) connection() *ouroboros.Connection {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn
}

func (c *Client) connectionError() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connErr
}

// monitorConnection watches the ouroboros connection for async errors and
// records the failure for RequestNext and AwaitNext to report. The error
// channel also closes on clean connection shutdown.
func (c *Client) monitorConnection(oConn *ouroboros.Connection) {
	err, ok := <-oConn.ErrorChan()
	if !ok || err == nil {
		err = errors.New("connection closed")
	}
	c.config.Logger.Debug(
		"connection closed",
		"error", err,
	)
	c.mutex.Lock()
	c.connErr = err
	c.mutex.Unlock()
	close(c.connClosed)
}

func (c *Client) handleRollForward(
	ctx ochainsync.CallbackContext,
	blockType uint,
	blockData any,
	tip ochainsync.Tip,
) error {
	var update chainsync.NextUpdate
	switch v := blockData.(type) {
	case gledger.Block:
		update = chainsync.NextUpdate{
			Kind:      chainsync.NextUpdateRollForward,
			BlockCbor: v.Cbor(),
			Point:     ocommon.NewPoint(v.SlotNumber(), v.Hash().Bytes()),
			Tip:       tip,
		}
	default:
		return fmt.Errorf("unexpected block data type: %T", v)
	}
	return c.pushUpdate(update)
}

func (c *Client) handleRollBackward(
	ctx ochainsync.CallbackContext,
	point ocommon.Point,
	tip ochainsync.Tip,
) error {
	return c.pushUpdate(chainsync.NextUpdate{
		Kind:  chainsync.NextUpdateRollBackward,
		Point: point,
		Tip:   tip,
	})
}

// pushUpdate queues an update for RequestNext and AwaitNext, blocking when
// the queue is full. Returning an error tells the protocol to shut down.
func (c *Client) pushUpdate(update chainsync.NextUpdate) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.updates <- update:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}
