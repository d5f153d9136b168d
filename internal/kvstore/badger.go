package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	badger "github.com/dgraph-io/badger/v4"
)

// ErrBadgerDirEmpty indicates that an on-disk Badger store was requested without a directory.
var ErrBadgerDirEmpty = errors.New("badger directory cannot be empty")

// Badger implements core.KeyValueStore backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	Log      *logger.Logger
}

// NewBadger opens a Badger database.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, ErrBadgerDirEmpty
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}

	dbOpts = dbOpts.WithLogger(badgerLogger{log: opts.Log})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at '%s': %w", opts.Dir, err)
	}

	return &Badger{db: db}, nil
}

// Get returns the value for key, or core.ErrKeyNotFound.
func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: '%s'", core.ErrKeyNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get key '%s': %w", key, err)
	}

	return value, nil
}

// Put stores value under key.
func (b *Badger) Put(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put key '%s': %w", key, err)
	}

	return nil
}

// Close releases the database.
func (b *Badger) Close() error {
	err := b.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close badger: %w", err)
	}

	return nil
}

// badgerLogger routes Badger warnings and errors into the service log.
// Info and debug chatter is dropped.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	if l.log != nil {
		l.log.Error("badger: "+strings.TrimSpace(format), args...)
	}
}

func (l badgerLogger) Warningf(format string, args ...any) {
	if l.log != nil {
		l.log.Warn("badger: "+strings.TrimSpace(format), args...)
	}
}

func (badgerLogger) Infof(string, ...any) {}

func (badgerLogger) Debugf(string, ...any) {}
