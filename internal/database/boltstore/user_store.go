package boltstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/models"

	bolt "go.etcd.io/bbolt"
)

// userRecord persists the password hash, which the API form of User hides.
type userRecord struct {
	*models.User
	Hash []byte `json:"password_hash"`
}

func emailKey(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}

// CreateUser stores a new account. Login and email must be unused.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		byLogin := tx.Bucket(BucketUsersByLogin)
		byEmail := tx.Bucket(BucketUsersByEmail)
		if byLogin.Get([]byte(user.Login)) != nil {
			return fmt.Errorf("login %q: %w", user.Login, database.ErrDuplicate)
		}
		if user.Email != "" && byEmail.Get(emailKey(user.Email)) != nil {
			return fmt.Errorf("email %q: %w", user.Email, database.ErrDuplicate)
		}

		users := tx.Bucket(BucketUsers)
		seq, err := users.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate user id: %w", err)
		}
		user.ID = strconv.FormatUint(seq, 10)
		user.CreatedAt = time.Now().UTC()

		if err := putJSON(users, []byte(user.ID), userRecord{User: user, Hash: user.PasswordHash}); err != nil {
			return err
		}
		if err := byLogin.Put([]byte(user.Login), []byte(user.ID)); err != nil {
			return err
		}
		if user.Email != "" {
			return byEmail.Put(emailKey(user.Email), []byte(user.ID))
		}
		return nil
	})
}

func loadUser(tx *bolt.Tx, id string) (*models.User, error) {
	rec := userRecord{User: &models.User{}}
	if err := getJSON(tx.Bucket(BucketUsers), []byte(id), &rec); err != nil {
		return nil, err
	}
	rec.User.PasswordHash = rec.Hash
	return rec.User, nil
}

// GetUser retrieves an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = loadUser(tx, id)
		return err
	})
	return user, err
}

// FindUserByEmail retrieves an account by email, case-insensitively.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findBy(BucketUsersByEmail, emailKey(email))
}

// FindUserByLogin retrieves an account by login.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.findBy(BucketUsersByLogin, []byte(strings.TrimSpace(login)))
}

func (s *Store) findBy(index []byte, key []byte) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		if len(key) == 0 {
			return database.ErrNotFound
		}
		id := tx.Bucket(index).Get(key)
		if id == nil {
			return database.ErrNotFound
		}
		var err error
		user, err = loadUser(tx, string(id))
		return err
	})
	return user, err
}
