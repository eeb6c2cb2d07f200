package boltstore

import (
	"context"

	bolt "go.etcd.io/bbolt"
)

// LoadSettings returns every stored option.
func (s *Store) LoadSettings(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketSettings).ForEach(func(k, v []byte) error {
			values[string(k)] = string(v)
			return nil
		})
	})
	return values, err
}

// SaveSettings replaces the stored options with values.
func (s *Store) SaveSettings(ctx context.Context, values map[string]string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(BucketSettings) != nil {
			if err := tx.DeleteBucket(BucketSettings); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(BucketSettings)
		if err != nil {
			return err
		}
		for k, v := range values {
			if err := bucket.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}
