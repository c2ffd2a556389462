package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/auth"
	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/models"
)

var errInvalidCredentials = apperr.Unauthorized("Invalid credentials")

type UserService struct {
	db     core.DbClient
	tokens *auth.TokenManager
	logger *slog.Logger
	now    func() time.Time
}

// UserView is the public part of a user returned alongside a token.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type AuthResult struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

func NewUserService(db core.DbClient, tokens *auth.TokenManager, logger *slog.Logger) *UserService {
	return &UserService{
		db:     db,
		tokens: tokens,
		logger: logger.With("component", "users"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Init creates the unique email index.
func (s *UserService) Init(ctx context.Context) error {
	return s.db.EnsureIndexes(ctx, models.UsersCollection, []core.IndexSpec{
		{Name: "email_unique", Fields: []string{"email"}, Unique: true},
	})
}

// Register creates an account and signs the caller in.
func (s *UserService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	u, err := s.create(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return s.issue(u)
}

// Login checks the password and returns a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	return s.issue(u)
}

// EnsureAdmin creates the administrator account unless the email is taken.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return false, err
	}
	if _, err := s.create(ctx, email, password); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("administrator account created", "email", email)
	return true, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	doc, err := s.db.FindOne(ctx, models.UsersCollection,
		core.Or(core.Equals("email", models.NormalizeEmail(email))), core.FindOptions{})
	if err != nil {
		return nil, err
	}
	return models.UserFromDocument(doc)
}

func (s *UserService) create(ctx context.Context, email, password string) (*models.User, error) {
	if _, err := s.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("User already exists")
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, apperr.Internal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	err = s.db.InsertOne(ctx, models.UsersCollection, u.ToDocument())
	if errors.Is(err, core.ErrDuplicateKey) {
		return nil, apperr.Conflict("User already exists")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

func (s *UserService) issue(u *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &AuthResult{Token: token, User: UserView{ID: u.ID, Email: u.Email}}, nil
}

func validateCredentials(email, password string) (string, error) {
	email = models.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("Please provide a valid email")
	}
	if password == "" {
		return "", apperr.Validation("Password is required")
	}
	return email, nil
}
