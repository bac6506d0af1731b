package record

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/redrec/internal/kv"
)

// WriteMode selects whether Create waits for its batch.
type WriteMode int

const (
	// WriteAwait sends the batch before Create returns and reports command
	// failures as a *BatchError.
	WriteAwait WriteMode = iota

	// WriteAsync returns the id as soon as the input is validated. The batch
	// runs in the background; failures go to Config.OnWriteError and to
	// Created.Wait.
	WriteAsync
)

// String returns the mode name used in configuration.
func (m WriteMode) String() string {
	switch m {
	case WriteAwait:
		return "await"
	case WriteAsync:
		return "async"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// ParseWriteMode accepts "await" (or "") and "async".
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "await":
		return WriteAwait, nil
	case "async":
		return WriteAsync, nil
	default:
		return 0, fmt.Errorf("unknown write mode %q (want await or async)", s)
	}
}

// Config describes a collection. Name and Store are required.
type Config struct {
	Name  string
	Store kv.Store

	// PrimaryKeys, when set, make the id the delimiter-joined values of
	// these fields in order. Otherwise ids come from IDs.
	PrimaryKeys []string

	// LookupKeys are indexed for FindOneByLookupKey and FindByLookupKey.
	LookupKeys []string

	WriteMode WriteMode

	// Optional collaborators; nil means the default.
	Clock   Clock        // NewWallClock()
	IDs     IDGenerator  // UUIDGenerator{}
	Logger  *slog.Logger // slog.Default()
	Metrics *Metrics     // no metrics

	// OnWriteError receives failures of async writes. The default logs them
	// at error level.
	OnWriteError func(id string, err error)
}

// Collection maps records onto hashes and maintains the primary and lookup
// indexes for one named partition of a store.
//
// Thread-safety: Collection is safe for concurrent use. Coordination between
// processes is left to the store's pipelines and transactions.
type Collection struct {
	name        string
	pkIndex     string
	lkIndex     string
	store       kv.Store
	primaryKeys []string
	lookupKeys  []string
	autoID      bool

	mode         WriteMode
	clock        Clock
	ids          IDGenerator
	logger       *slog.Logger
	metrics      *Metrics
	onWriteError func(id string, err error)

	// flushMu orders inflight.Add against inflight.Wait: Create holds it
	// shared while adding, Flush holds it exclusively while waiting.
	flushMu  sync.RWMutex
	inflight sync.WaitGroup
}

// New validates cfg and returns a collection. Index keys are derived from
// the trimmed name here and never change afterwards.
func New(cfg Config) (*Collection, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, &ConfigError{Option: "name", Message: "must not be blank"}
	}
	if cfg.Store == nil {
		return nil, &ConfigError{Collection: name, Option: "store", Message: "is required"}
	}
	if cfg.WriteMode != WriteAwait && cfg.WriteMode != WriteAsync {
		return nil, &ConfigError{Collection: name, Option: "write mode", Message: cfg.WriteMode.String()}
	}
	primaryKeys, err := checkKeyFields(name, "primary_keys", cfg.PrimaryKeys)
	if err != nil {
		return nil, err
	}
	lookupKeys, err := checkKeyFields(name, "lookup_keys", cfg.LookupKeys)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		name:         name,
		pkIndex:      primaryIndexKey(name),
		lkIndex:      lookupIndexKey(name),
		store:        cfg.Store,
		primaryKeys:  primaryKeys,
		lookupKeys:   lookupKeys,
		autoID:       len(primaryKeys) == 0,
		mode:         cfg.WriteMode,
		clock:        cfg.Clock,
		ids:          cfg.IDs,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		onWriteError: cfg.OnWriteError,
	}
	if c.clock == nil {
		c.clock = NewWallClock()
	}
	if c.ids == nil {
		c.ids = UUIDGenerator{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("collection", name)
	if c.onWriteError == nil {
		c.onWriteError = func(id string, err error) {
			c.logger.Error("async write failed", "id", id, "error", err)
		}
	}
	return c, nil
}

// checkKeyFields trims declared field names and rejects blank names, names
// containing the delimiter, and the reserved system fields.
func checkKeyFields(collection, option string, fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		switch {
		case f == "":
			return nil, &ConfigError{Collection: collection, Option: option, Message: "field name must not be blank"}
		case strings.Contains(f, Delimiter):
			return nil, &ConfigError{Collection: collection, Option: option,
				Message: fmt.Sprintf("field name %q contains %q", f, Delimiter)}
		case f == FieldID || f == FieldTimestamp:
			return nil, &ConfigError{Collection: collection, Option: option,
				Message: fmt.Sprintf("field name %q is reserved", f)}
		}
		out = append(out, f)
	}
	return out, nil
}

// Name returns the trimmed collection name.
func (c *Collection) Name() string { return c.name }

// PrimaryIndexKey returns the key of the sorted set of record keys.
func (c *Collection) PrimaryIndexKey() string { return c.pkIndex }

// LookupIndexKey returns the key of the sorted set of lookup members.
func (c *Collection) LookupIndexKey() string { return c.lkIndex }

// RecordKey returns the hash key for id.
func (c *Collection) RecordKey(id string) string { return recordKey(c.name, id) }

// PrimaryKeys returns the declared primary key fields.
func (c *Collection) PrimaryKeys() []string { return append([]string(nil), c.primaryKeys...) }

// LookupKeys returns the declared lookup key fields.
func (c *Collection) LookupKeys() []string { return append([]string(nil), c.lookupKeys...) }

// AutoID reports whether ids are generated rather than derived.
func (c *Collection) AutoID() bool { return c.autoID }

// WriteMode returns the configured write mode.
func (c *Collection) WriteMode() WriteMode { return c.mode }
