// Package ledger implements the durable certificate ledger.
//
// The ledger is the single source of truth for issued certificates and the
// per-scope serial and CRL-number counters. It is backed by a bbolt database,
// so every mutation is a single atomic transaction: readers see either the
// pre- or post-state of a write, never a partial record, and a committed
// counter increment survives a process crash.
//
// Layout:
//
//	scopes            scope name -> ScopeInfo (JSON)
//	counters          "<scope>/serial", "<scope>/crlnumber" -> uint64 (8-byte big endian)
//	certs:<scope>     serial (8-byte big endian) -> Record (JSON)
//
// Storing serials big endian keeps bbolt's key order equal to allocation
// order, so listings come back ascending by serial for free.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Scope identifies one tier of the CA hierarchy.
type Scope string

const (
	ScopeRoot         Scope = "root"
	ScopeIntermediate Scope = "intermediate"
)

// Valid reports whether s names a known CA scope.
func (s Scope) Valid() bool {
	return s == ScopeRoot || s == ScopeIntermediate
}

// Status is the stored state of a certificate record. Display status
// (including "expired") is derived on read and never stored.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
)

// Sentinel errors returned by the store.
var (
	// ErrNotFound indicates the requested scope or record does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrExists indicates a scope or record already exists.
	ErrExists = errors.New("ledger: already exists")

	// ErrAlreadyRevoked indicates the record is already revoked.
	ErrAlreadyRevoked = errors.New("ledger: certificate already revoked")

	// ErrCorrupt indicates the persisted state is unreadable. The store
	// refuses to guess; the affected scope must be repaired manually.
	ErrCorrupt = errors.New("ledger: corrupt state")
)

// ScopeInfo holds the immutable metadata of a CA scope. The scope's counters
// live in the counters bucket and are mutated only through NextSerial and
// NextCRLNumber.
type ScopeInfo struct {
	Scope        Scope     `json:"scope"`
	Subject      string    `json:"subject"`
	ValidityDays int       `json:"validity_days"`
	KeyHandle    string    `json:"key_handle"`
	CertPath     string    `json:"cert_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record is one issued end-entity certificate.
type Record struct {
	Serial       uint64     `json:"serial"`
	Scope        Scope      `json:"scope"`
	Subject      string     `json:"subject"`
	NotBefore    time.Time  `json:"not_before"`
	NotAfter     time.Time  `json:"not_after"`
	Status       Status     `json:"status"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	ArtifactPath string     `json:"artifact_path"`
}

// Store is the bbolt-backed ledger.
type Store struct {
	db         *bbolt.DB
	serialBase uint64
	crlBase    uint64
}

const (
	bucketScopes   = "scopes"
	bucketCounters = "counters"

	// DefaultSerialBase matches the classic OpenSSL CA layout where the
	// serial file is seeded with 1000.
	DefaultSerialBase = 1000

	// DefaultCRLBase is the first CRL number handed out per scope.
	DefaultCRLBase = 1000

	// openTimeout bounds the wait on the database file lock. bbolt allows a
	// single writer process; without a timeout a second process blocks
	// indefinitely instead of reporting the conflict.
	openTimeout = 1 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithSerialBase sets the first serial number allocated per scope.
func WithSerialBase(base uint64) Option {
	return func(s *Store) { s.serialBase = base }
}

// WithCRLBase sets the first CRL number allocated per scope.
func WithCRLBase(base uint64) Option {
	return func(s *Store) { s.crlBase = base }
}

// Open opens (creating if necessary) the ledger database at path. It fails
// with bbolt.ErrTimeout when another process holds the database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	s := &Store{
		db:         db,
		serialBase: DefaultSerialBase,
		crlBase:    DefaultCRLBase,
	}
	for _, opt := range opts {
		opt(s)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketScopes)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCounters))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: init buckets: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database.
func (s *Store) Path() string {
	return s.db.Path()
}

func certsBucket(scope Scope) []byte {
	return []byte("certs:" + string(scope))
}

func counterKey(scope Scope, name string) []byte {
	return []byte(string(scope) + "/" + name)
}

func u64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// CreateScope records a new CA scope. Fails with ErrExists if the scope was
// created before; scope metadata is immutable once written.
func (s *Store) CreateScope(info ScopeInfo) error {
	if !info.Scope.Valid() {
		return fmt.Errorf("ledger: invalid scope %q", info.Scope)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketScopes))
		if b.Get([]byte(info.Scope)) != nil {
			return fmt.Errorf("scope %s: %w", info.Scope, ErrExists)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(info.Scope), data); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(certsBucket(info.Scope)); err != nil {
			return err
		}
		return nil
	})
}

// GetScope returns the metadata of a scope, or ErrNotFound.
func (s *Store) GetScope(scope Scope) (*ScopeInfo, error) {
	var info ScopeInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketScopes)).Get([]byte(scope))
		if data == nil {
			return fmt.Errorf("scope %s: %w", scope, ErrNotFound)
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("scope %s: %w: %v", scope, ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// HasScope reports whether a scope has been created.
func (s *Store) HasScope(scope Scope) bool {
	_, err := s.GetScope(scope)
	return err == nil
}

// NextSerial allocates the next serial number for a scope. The incremented
// counter is committed before the serial is returned, so a crash between
// allocation and use burns the serial instead of reusing it.
func (s *Store) NextSerial(scope Scope) (uint64, error) {
	return s.nextCounter(scope, "serial", s.serialBase)
}

// NextCRLNumber allocates the next CRL number for a scope.
func (s *Store) NextCRLNumber(scope Scope) (uint64, error) {
	return s.nextCounter(scope, "crlnumber", s.crlBase)
}

// CurrentCRLNumber returns the most recently allocated CRL number for a
// scope, or 0 if none has been allocated yet.
func (s *Store) CurrentCRLNumber(scope Scope) (uint64, error) {
	var current uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketCounters)).Get(counterKey(scope, "crlnumber"))
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("scope %s crlnumber: %w", scope, ErrCorrupt)
		}
		// The stored value is the next number to hand out.
		current = binary.BigEndian.Uint64(raw) - 1
		return nil
	})
	return current, err
}

func (s *Store) nextCounter(scope Scope, name string, base uint64) (uint64, error) {
	var allocated uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketCounters))
		key := counterKey(scope, name)
		raw := b.Get(key)

		next := base
		if raw != nil {
			if len(raw) != 8 {
				return fmt.Errorf("scope %s %s counter: %w", scope, name, ErrCorrupt)
			}
			next = binary.BigEndian.Uint64(raw)
			if next < base {
				return fmt.Errorf("scope %s %s counter below base: %w", scope, name, ErrCorrupt)
			}
		}

		allocated = next
		return b.Put(key, u64be(next+1))
	})
	if err != nil {
		return 0, err
	}
	return allocated, nil
}

// PutRecord stores a new certificate record. The record and nothing else is
// written in one transaction. Fails with ErrExists if the serial is taken,
// which would indicate a serial-allocation bug.
func (s *Store) PutRecord(rec Record) error {
	if !rec.Scope.Valid() {
		return fmt.Errorf("ledger: invalid scope %q", rec.Scope)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(certsBucket(rec.Scope))
		if err != nil {
			return err
		}
		key := u64be(rec.Serial)
		if b.Get(key) != nil {
			return fmt.Errorf("serial %d: %w", rec.Serial, ErrExists)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// GetRecord returns the record for (scope, serial), or ErrNotFound.
func (s *Store) GetRecord(scope Scope, serial uint64) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certsBucket(scope))
		if b == nil {
			return fmt.Errorf("serial %d: %w", serial, ErrNotFound)
		}
		data := b.Get(u64be(serial))
		if data == nil {
			return fmt.Errorf("serial %d: %w", serial, ErrNotFound)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("serial %d: %w: %v", serial, ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkRevoked transitions a record from valid to revoked in one transaction.
// The transition happens exactly once: a second call fails with
// ErrAlreadyRevoked and leaves the stored timestamp untouched.
func (s *Store) MarkRevoked(scope Scope, serial uint64, at time.Time) (*Record, error) {
	var rec Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certsBucket(scope))
		if b == nil {
			return fmt.Errorf("serial %d: %w", serial, ErrNotFound)
		}
		key := u64be(serial)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("serial %d: %w", serial, ErrNotFound)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("serial %d: %w: %v", serial, ErrCorrupt, err)
		}
		if rec.Status == StatusRevoked {
			return fmt.Errorf("serial %d: %w", serial, ErrAlreadyRevoked)
		}

		at = at.UTC()
		rec.Status = StatusRevoked
		rec.RevokedAt = &at

		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, updated)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords returns all records of a scope, ascending by serial.
func (s *Store) ListRecords(scope Scope) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certsBucket(scope))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("serial key %x: %w: %v", k, ErrCorrupt, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListRevoked returns the revoked records of a scope, ascending by serial.
func (s *Store) ListRevoked(scope Scope) ([]Record, error) {
	records, err := s.ListRecords(scope)
	if err != nil {
		return nil, err
	}
	var revoked []Record
	for _, rec := range records {
		if rec.Status == StatusRevoked {
			revoked = append(revoked, rec)
		}
	}
	return revoked, nil
}
