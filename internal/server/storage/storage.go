// Package storage persists game ledgers in SQLite. Ledger writes go through a
// single async writer; reads and game creation are synchronous.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrDegraded is returned once the store stopped accepting writes
	ErrDegraded = errors.New("storage degraded")
	// ErrQueueFull is returned when the async write queue has no room
	ErrQueueFull = errors.New("storage write queue full")
	// ErrGameNotFound is returned for an unknown game id
	ErrGameNotFound = errors.New("game not found")
	// ErrNotOwner is returned when a write targets another identity's game
	ErrNotOwner = errors.New("game owned by another identity")
)

const writeQueueSize = 1000

// writeJob is one queued transactional write; done, if set, gets the outcome
type writeJob struct {
	fn   func(*sql.Tx) error
	done func(error)
}

// Store handles SQLite database operations with async ledger writes
type Store struct {
	db           *sql.DB
	path         string
	writeChan    chan writeJob
	healthStatus atomic.Bool
	log          zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewStore creates a new storage instance with async writer
func NewStore(dataSourceName string, devMode bool, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode in development for better concurrency
	if devMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		db:        db,
		path:      dataSourceName,
		writeChan: make(chan writeJob, writeQueueSize),
		log:       log.With().Str("component", "storage").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.healthStatus.Store(true)

	s.wg.Add(1)
	go s.writerLoop()

	return s, nil
}

// IsHealthy returns true if the storage is operational
func (s *Store) IsHealthy() bool {
	return s.healthStatus.Load()
}

// enqueue hands a write to the writer without blocking
func (s *Store) enqueue(job writeJob) error {
	if !s.healthStatus.Load() {
		return ErrDegraded
	}

	select {
	case <-s.ctx.Done():
		return ErrDegraded
	default:
	}

	select {
	case s.writeChan <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// writerLoop processes async write operations in submission order
func (s *Store) writerLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain remaining writes with timeout
			deadline := time.After(2 * time.Second)
			for {
				select {
				case job := <-s.writeChan:
					s.runJob(job)
				case <-deadline:
					return
				default:
					return
				}
			}

		case job := <-s.writeChan:
			s.runJob(job)
		}
	}
}

func (s *Store) runJob(job writeJob) {
	var err error
	if s.healthStatus.Load() {
		err = s.executeWrite(job.fn)
	} else {
		err = ErrDegraded
	}
	if job.done != nil {
		job.done(err)
	}
}

// executeWrite runs a transactional write operation. A write rejected by the
// job itself is rolled back and reported; failing to begin or commit means
// the database is unusable and the store degrades.
func (s *Store) executeWrite(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error().Err(err).Msg("storage degraded: failed to begin transaction")
		s.healthStatus.Store(false)
		return fmt.Errorf("%w: %v", ErrDegraded, err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Msg("storage degraded: failed to commit")
		s.healthStatus.Store(false)
		return fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	return nil
}

// Close drains pending writes and closes the database connection
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.log.Warn().Msg("storage writer shutdown timeout, some writes may be lost")
		}

		err = s.db.Close()
	})
	return err
}

// InitDB creates the database schema
func (s *Store) InitDB() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return tx.Commit()
}

// DeleteDB closes the store and removes the database file
func (s *Store) DeleteDB() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete database file: %w", err)
	}

	return nil
}
