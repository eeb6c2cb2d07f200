package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/models"

	"gorm.io/gorm"
)

// CreateUser stores a new account. Login and email must be unused.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&userRow{}).Where("login = ?", user.Login).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("login %q: %w", user.Login, database.ErrDuplicate)
		}

		row := &userRow{
			Login:        user.Login,
			Email:        user.Email,
			DisplayName:  user.DisplayName,
			PasswordHash: user.PasswordHash,
			CreatedAt:    time.Now().UTC(),
		}
		if key := emailKey(user.Email); key != "" {
			if err := tx.Model(&userRow{}).Where("email_key = ?", key).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("email %q: %w", user.Email, database.ErrDuplicate)
			}
			row.EmailKey = &key
		}

		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("user %q: %w", user.Login, database.ErrDuplicate)
			}
			return err
		}
		user.ID = strconv.FormatUint(row.ID, 10)
		user.CreatedAt = row.CreatedAt
		return nil
	})
}

// GetUser retrieves an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, database.ErrNotFound
	}
	var row userRow
	if err := s.withContext(ctx).First(&row, n).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

// FindUserByEmail retrieves an account by email, case-insensitively.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	key := emailKey(email)
	if key == "" {
		return nil, database.ErrNotFound
	}
	var row userRow
	if err := s.withContext(ctx).Where("email_key = ?", key).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

// FindUserByLogin retrieves an account by login.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, database.ErrNotFound
	}
	var row userRow
	if err := s.withContext(ctx).Where("login = ?", login).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}
