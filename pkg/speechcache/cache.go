// Package speechcache persists one-shot synthesis results in BadgerDB so
// repeated prompts are played without another request.
//
// Entries are keyed by a digest of the text and every option that changes
// the rendered audio, and stored as msgpack records with an optional TTL.
package speechcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/deepgram-voice/pkg/deepgram"
)

// keyPrefix namespaces cache records inside the database.
const keyPrefix = "synth:"

// ErrNotFound is returned by Get when no record exists.
var ErrNotFound = errors.New("speechcache: not found")

// Record is one cached synthesis.
type Record struct {
	Key        string    `msgpack:"-"`
	Text       string    `msgpack:"text"`
	Model      string    `msgpack:"model"`
	Encoding   string    `msgpack:"encoding"`
	SampleRate int       `msgpack:"sample_rate"`
	Container  string    `msgpack:"container,omitempty"`
	BitRate    int       `msgpack:"bit_rate,omitempty"`
	Audio      []byte    `msgpack:"audio"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// Options configures a Cache.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// TTL expires records after the given duration. Zero keeps them
	// until purged.
	TTL time.Duration

	Logger *slog.Logger
}

// Cache is a deepgram.SynthesisCache backed by BadgerDB.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

var _ deepgram.SynthesisCache = (*Cache)(nil)

// Open opens or creates a cache.
func Open(opts Options) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("speechcache: Options.Dir is required for on-disk mode")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("speechcache: open: %w", err)
	}
	return &Cache{db: db, ttl: opts.TTL, logger: opts.Logger}, nil
}

// Key returns the record key for text rendered with opts. Options that do
// not change the audio, such as callbacks and AutoFlush, are ignored.
func Key(opts *deepgram.SpeakOptions, text string) string {
	var o deepgram.SpeakOptions
	if opts != nil {
		o = *opts
	}
	h := sha256.New()
	for _, part := range []string{
		o.Model,
		o.Encoding,
		strconv.Itoa(o.SampleRate),
		o.Container,
		strconv.Itoa(o.BitRate),
		text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// LoadSynthesis returns cached audio for text. Storage errors are logged
// and reported as a miss.
func (c *Cache) LoadSynthesis(ctx context.Context, opts *deepgram.SpeakOptions, text string) ([]byte, bool) {
	rec, err := c.Get(ctx, Key(opts, text))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("speech cache read failed", "error", err)
		}
		return nil, false
	}
	return rec.Audio, true
}

// StoreSynthesis records audio for text.
func (c *Cache) StoreSynthesis(_ context.Context, opts *deepgram.SpeakOptions, text string, audio []byte) error {
	var o deepgram.SpeakOptions
	if opts != nil {
		o = *opts
	}
	rec := Record{
		Text:       text,
		Model:      o.Model,
		Encoding:   o.Encoding,
		SampleRate: o.SampleRate,
		Container:  o.Container,
		BitRate:    o.BitRate,
		Audio:      audio,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("speechcache: encode: %w", err)
	}
	e := badger.NewEntry([]byte(Key(opts, text)), data)
	if c.ttl > 0 {
		e = e.WithTTL(c.ttl)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	})
}

// Get returns the record stored under key.
func (c *Cache) Get(_ context.Context, key string) (*Record, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("speechcache: decode %s: %w", key, err)
	}
	rec.Key = key
	return &rec, nil
}

// List iterates over all records in key order. Malformed records are
// yielded as errors.
func (c *Cache) List(_ context.Context) iter.Seq2[*Record, error] {
	prefix := []byte(keyPrefix)
	return func(yield func(*Record, error) bool) {
		err := c.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				var rec Record
				err := item.Value(func(v []byte) error {
					return msgpack.Unmarshal(v, &rec)
				})
				if err != nil {
					if !yield(nil, fmt.Errorf("speechcache: decode %s: %w", key, err)) {
						return nil
					}
					continue
				}
				rec.Key = key
				if !yield(&rec, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Delete removes one record. Missing keys are not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Purge removes every record and returns how many were dropped.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	var keys []string
	for rec, err := range c.List(ctx) {
		if err != nil {
			c.logger.Debug("purge: skipping unreadable record", "error", err)
			continue
		}
		keys = append(keys, rec.Key)
	}
	if err := c.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return 0, fmt.Errorf("speechcache: purge: %w", err)
	}
	return len(keys), nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger output to slog, dropping info and debug.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any) {
	b.l.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (b badgerLogger) Warningf(f string, v ...any) {
	b.l.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
