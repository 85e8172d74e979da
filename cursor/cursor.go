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

// Package cursor persists the most recently confirmed chain point so that
// a follower can resume syncing from where it left off across restarts.
package cursor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/event"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	chainPointRowId = 1
)

// ChainPoint represents the sqlite table used to track the latest confirmed chain point
type ChainPoint struct {
	ID   uint `gorm:"primarykey"`
	Slot uint64
	Hash []byte
}

func (ChainPoint) TableName() string {
	return "chain_point"
}

// Store is a sqlite-backed cursor store. It records the most recently
// confirmed chain point and serves it back as an intersect candidate on
// the next connection attempt.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ chainsync.PointSource = (*Store)(nil)

// New creates a sqlite cursor store. Uses an in-memory database if dataDir is empty.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	var cursorDb *gorm.DB
	var err error
	if dataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		cursorDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// Open sqlite DB
		cursorDbPath := filepath.Join(
			dataDir,
			"cursor.sqlite",
		)
		// WAL journal mode, disable sync on write
		cursorConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
		cursorDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", cursorDbPath, cursorConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	store := &Store{
		db:     cursorDb,
		logger: logger,
	}
	if err := store.init(); err != nil {
		return nil, err
	}
	// Create table schema
	if err := store.db.AutoMigrate(&ChainPoint{}); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	return nil
}

// Load returns the persisted chain point. The boolean return is false when
// no point has been recorded yet.
func (s *Store) Load() (ocommon.Point, bool, error) {
	var tmpPoint ChainPoint
	result := s.db.First(&tmpPoint)
	if result.Error != nil {
		// It's not an error if there's no records found
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ocommon.Point{}, false, nil
		}
		return ocommon.Point{}, false, result.Error
	}
	return ocommon.NewPoint(tmpPoint.Slot, tmpPoint.Hash), true, nil
}

// Update records the given point as the most recently confirmed chain point.
func (s *Store) Update(point ocommon.Point) error {
	tmpPoint := ChainPoint{
		ID:   chainPointRowId,
		Slot: point.Slot,
		Hash: point.Hash,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"slot", "hash"}),
	}).Create(&tmpPoint)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// HandleBlockEvent persists the point from a confirmed block event
func (s *Store) HandleBlockEvent(evt event.Event) {
	e, ok := evt.Data.(chainsync.BlockEvent)
	if !ok {
		s.logger.Warn(
			"received unexpected event data type for block event",
			"expected", "chainsync.BlockEvent",
			"got", fmt.Sprintf("%T", evt.Data),
		)
		return
	}
	if err := s.Update(e.Point); err != nil {
		s.logger.Error(
			"failed to update cursor",
			"error", err,
			"slot", e.Point.Slot,
		)
	}
}

// HandleRollbackEvent rewinds the cursor to the rollback point
func (s *Store) HandleRollbackEvent(evt event.Event) {
	e, ok := evt.Data.(chainsync.RollbackEvent)
	if !ok {
		s.logger.Warn(
			"received unexpected event data type for rollback event",
			"expected", "chainsync.RollbackEvent",
			"got", fmt.Sprintf("%T", evt.Data),
		)
		return
	}
	if err := s.Update(e.Point); err != nil {
		s.logger.Error(
			"failed to update cursor",
			"error", err,
			"slot", e.Point.Slot,
		)
	}
}

// Close closes the underlying database
func (s *Store) Close() error {
	// get DB handle from gorm.DB
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return db.Close()
}
