// Package boltstore provides persistent storage using BoltDB (bbolt).
// It implements database.Store. bbolt serializes writers, so every mutation
// together with its status transition runs in a single Update transaction.
package boltstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"issuesmap/internal/database"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketIssues stores issues keyed by big-endian id
	BucketIssues = []byte("issues")

	// BucketReports stores reports and templates keyed by big-endian id
	BucketReports = []byte("reports")

	// BucketIssueReports indexes reports by issue: issueID|reportID -> nil
	BucketIssueReports = []byte("issue_reports")

	// BucketComments stores comments keyed by big-endian id
	BucketComments = []byte("comments")

	// BucketIssueComments indexes comments by issue: issueID|commentID -> nil
	BucketIssueComments = []byte("issue_comments")

	// BucketUsers stores registered accounts keyed by id
	BucketUsers = []byte("users")

	// BucketUsersByEmail maps lowercased email -> user id
	BucketUsersByEmail = []byte("users_by_email")

	// BucketUsersByLogin maps login -> user id
	BucketUsersByLogin = []byte("users_by_login")

	// BucketSettings stores option name -> raw value
	BucketSettings = []byte("settings")
)

// Store wraps a BoltDB database.
type Store struct {
	db *bolt.DB
}

var _ database.Store = (*Store)(nil)

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "issuesmap.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "issuesmap.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketIssues,
			BucketReports,
			BucketIssueReports,
			BucketComments,
			BucketIssueComments,
			BucketUsers,
			BucketUsersByEmail,
			BucketUsersByLogin,
			BucketSettings,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Stats returns database statistics.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// indexKey builds the composite key parentID|childID used by the index buckets.
func indexKey(parent, child int64) []byte {
	return append(itob(parent), itob(child)...)
}

// childIDs returns the child ids indexed under parent, in ascending order.
func childIDs(index *bolt.Bucket, parent int64) []int64 {
	prefix := itob(parent)
	var ids []int64
	c := index.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		ids = append(ids, btoi(k[8:]))
	}
	return ids
}

func getJSON(bucket *bolt.Bucket, key []byte, v any) error {
	data := bucket.Get(key)
	if data == nil {
		return database.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func putJSON(bucket *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return bucket.Put(key, data)
}
