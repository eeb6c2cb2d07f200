// Package accounts registers users and checks their passwords.
package accounts

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"issuesmap/internal/database"
	"issuesmap/internal/errs"
	"issuesmap/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// MsgBadCredentials is returned for any failed login.
const MsgBadCredentials = "Invalid login or password."

var loginPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)

// Store persists accounts.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
}

// Service manages accounts.
type Service struct {
	store Store
	cost  int
}

// NewService creates an account service hashing with bcrypt's default cost.
func NewService(store Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// SetCost changes the bcrypt cost used for new password hashes.
func (s *Service) SetCost(cost int) { s.cost = cost }

// Registration is a sign-up request.
type Registration struct {
	Login       string `json:"login"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (r *Registration) normalize() {
	r.Login = strings.TrimSpace(r.Login)
	r.Email = strings.TrimSpace(r.Email)
	r.DisplayName = models.CapLen(strings.TrimSpace(r.DisplayName), models.MaxLen64)
}

func (r *Registration) validate() error {
	switch {
	case r.Login == "":
		return errs.Validation(models.ErrLoginRequired.Error())
	case !loginPattern.MatchString(r.Login):
		return errs.Validation("Logins are 3 to 32 letters, digits, dots, dashes or underscores.")
	case !models.ValidEmail(r.Email):
		return errs.Validation(models.ErrInvalidEmail.Error())
	case len(r.Password) < models.MinPasswordLen:
		return errs.Validation(models.ErrPasswordTooShort.Error())
	case len(r.Password) > 72:
		return errs.Validation("Passwords must be at most 72 bytes.")
	}
	return nil
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, reg Registration) (*models.User, error) {
	reg.normalize()
	if err := reg.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Unable to create the account.", err)
	}

	user := &models.User{
		Login:        reg.Login,
		Email:        reg.Email,
		DisplayName:  reg.DisplayName,
		PasswordHash: hash,
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Login
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, errs.Conflict("That login or email address is already registered.")
		}
		return nil, errs.Dependency("Unable to create the account.", err)
	}

	log.Info().Str("user_id", user.ID).Str("login", user.Login).Msg("accounts: user registered")
	return user, nil
}

// Authenticate checks a login (or email) and password.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, errs.Validation(MsgBadCredentials)
	}

	user, err := s.find(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		log.Debug().Str("login", login).Msg("accounts: failed login")
		return nil, errs.Authorization(MsgBadCredentials)
	}
	return user, nil
}

func (s *Service) find(ctx context.Context, login string) (*models.User, error) {
	lookup := s.store.FindUserByLogin
	if strings.Contains(login, "@") {
		lookup = s.store.FindUserByEmail
	}
	user, err := lookup(ctx, login)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Dependency("Unable to sign in.", err)
	}
	return user, nil
}

// EnsureUser returns the account with the given login, registering it first
// when it does not exist. It reports whether the account was created.
func (s *Service) EnsureUser(ctx context.Context, reg Registration) (*models.User, bool, error) {
	user, err := s.find(ctx, strings.TrimSpace(reg.Login))
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}
	user, err = s.Register(ctx, reg)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}
