// Package store implements the entity store adapter: uniform CRUD and
// partial-update semantics for every entity kind over a boltdb key-value
// file, with tenant- and relation-scoped secondary indexes.
//
// Layout: each entity kind has its own bucket of JSON documents keyed by
// id. Secondary index buckets hold composite keys so that range scans
// answer the scoped queries:
//
//	company by alias          alias -> companyID
//	user by name              companyAlias/username -> userID
//	entities by company       companyID/<inverted-nanos>/id -> id
//	apartments by property    propertyID/<inverted-nanos>/id -> id
//	leads by property         propertyID/<inverted-nanos>/id -> id
//
// The inverted creation timestamp in the key makes a forward range scan
// yield newest-first order, which is the pagination contract.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"crm-service/internal/apperr"
)

var (
	companiesBucket         = []byte("companiesv1")
	companiesAliasIndex     = []byte("companiesaliasindexv1")
	usersBucket             = []byte("usersv1")
	usersNameIndex          = []byte("usersnameindexv1")
	usersCompanyIndex       = []byte("userscompanyindexv1")
	leadsBucket             = []byte("leadsv1")
	leadsCompanyIndex       = []byte("leadscompanyindexv1")
	leadsPropertyIndex      = []byte("leadspropertyindexv1")
	propertiesBucket        = []byte("propertiesv1")
	propertiesCompanyIndex  = []byte("propertiescompanyindexv1")
	apartmentsBucket        = []byte("apartmentsv1")
	apartmentsCompanyIndex  = []byte("apartmentscompanyindexv1")
	apartmentsPropertyIndex = []byte("apartmentspropertyindexv1")
)

var allBuckets = [][]byte{
	companiesBucket, companiesAliasIndex,
	usersBucket, usersNameIndex, usersCompanyIndex,
	leadsBucket, leadsCompanyIndex, leadsPropertyIndex,
	propertiesBucket, propertiesCompanyIndex,
	apartmentsBucket, apartmentsCompanyIndex, apartmentsPropertyIndex,
}

// DefaultPageSize bounds tenant-scoped listings when the caller does not
// ask for a specific page size.
const DefaultPageSize = 50

// Store is the entity store backed by a boltdb file.
type Store struct {
	path        string
	db          *bolt.DB
	logger      *zap.Logger
	openTimeout time.Duration
}

// NewStore returns a Store for the file at the given path.
func NewStore(path string) *Store {
	return &Store{
		path:        path,
		logger:      zap.NewNop(),
		openTimeout: time.Second,
	}
}

// WithLogger sets the logger used by the store.
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	s.logger = logger
	return s
}

// WithOpenTimeout bounds how long Open waits for the file lock held by
// another process.
func (s *Store) WithOpenTimeout(d time.Duration) *Store {
	if d > 0 {
		s.openTimeout = d
	}
	return s
}

// Open creates the boltdb file if it doesn't exist and opens it,
// ensuring all buckets are present.
func (s *Store) Open(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("unable to create directory %s: %v", filepath.Dir(s.path), err)
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.openTimeout})
	if err != nil {
		return fmt.Errorf("unable to open boltdb file %v", err)
	}
	s.db = db

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("unable to initialize buckets: %v", err)
	}

	s.logger.Info("Entity store opened", zap.String("path", s.path))
	return nil
}

// Close closes the underlying boltdb file.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// view runs a read-only transaction, converting any raw bolt failure
// into a StoreError so nothing store-specific escapes the adapter.
func (s *Store) view(op string, fn func(tx *bolt.Tx) error) error {
	return s.wrap(op, s.db.View(fn))
}

// update runs a writable transaction with the same error policy.
func (s *Store) update(op string, fn func(tx *bolt.Tx) error) error {
	return s.wrap(op, s.db.Update(fn))
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*apperr.Error); ok {
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	s.logger.Error("Store operation failed", zap.String("op", op), zap.Error(err))
	return &apperr.Error{Kind: apperr.StoreError, Msg: "storage operation failed", Op: op, Err: err}
}

// newID assigns a random unique token. IDs are assigned once at creation
// and are immutable.
func newID() string {
	return uuid.NewString()
}

// indexKey builds a composite index key scope/<inverted-nanos>/id. The
// inverted timestamp sorts newest first under bolt's lexicographic order.
func indexKey(scope string, createdAt time.Time, id string) []byte {
	inv := uint64(math.MaxInt64 - createdAt.UnixNano())
	return []byte(fmt.Sprintf("%s/%020d/%s", scope, inv, id))
}

func indexPrefix(scope string) []byte {
	return []byte(scope + "/")
}

// encodeCursor turns the last consumed index key into an opaque
// continuation token.
func encodeCursor(lastKey []byte) string {
	return base64.RawURLEncoding.EncodeToString(lastKey)
}

func decodeCursor(cursor string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.InvalidArgument, Msg: "invalid cursor", Err: err}
	}
	return key, nil
}

// scanIndex walks an index bucket for all keys under scope, newest first,
// resuming after the cursor when one is given. It collects up to pageSize
// ids and reports whether more results exist past the page.
func scanIndex(tx *bolt.Tx, bucket []byte, scope, cursor string, pageSize int) (ids []string, nextCursor string, more bool, err error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	prefix := indexPrefix(scope)
	c := tx.Bucket(bucket).Cursor()

	k, v := c.Seek(prefix)
	if cursor != "" {
		after, derr := decodeCursor(cursor)
		if derr != nil {
			return nil, "", false, derr
		}
		k, v = c.Seek(after)
		if k != nil && string(k) == string(after) {
			k, v = c.Next()
		}
	}

	var lastKey []byte
	for ; k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if len(ids) == pageSize {
			more = true
			break
		}
		ids = append(ids, string(v))
		lastKey = append(lastKey[:0], k...)
	}

	if more {
		nextCursor = encodeCursor(lastKey)
	}
	return ids, nextCursor, more, nil
}

// walkIndex visits every id under scope in newest-first order. Used by
// the unpaginated search path, which does a whole-tenant scan.
func walkIndex(tx *bolt.Tx, bucket []byte, scope string, visit func(id string) error) error {
	prefix := indexPrefix(scope)
	c := tx.Bucket(bucket).Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if err := visit(string(v)); err != nil {
			return err
		}
	}
	return nil
}

// indexHasAny reports whether any entry exists under scope.
func indexHasAny(tx *bolt.Tx, bucket []byte, scope string) bool {
	prefix := indexPrefix(scope)
	c := tx.Bucket(bucket).Cursor()
	k, _ := c.Seek(prefix)
	return k != nil && hasPrefix(k, prefix)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	return string(k[:len(prefix)]) == string(prefix)
}
