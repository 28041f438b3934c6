package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Credential errors. Login failures deliberately do not say which of
// username or password was wrong.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username or email already taken")
)

// AuthService registers accounts and verifies credentials. Session
// issuance is the HTTP layer's job.
type AuthService struct {
	repos  store.UnitOfWork
	logger *zap.Logger
}

func NewAuthService(repos store.UnitOfWork) *AuthService {
	return &AuthService{repos: repos, logger: util.GetLogger()}
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Register creates an account with a bcrypt password hash.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	fields := []string{}
	if strings.TrimSpace(req.Username) == "" {
		fields = append(fields, "username")
	}
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, "email")
	}
	if len(req.Password) < 8 {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if _, err := s.repos.Users().GetByUsername(ctx, req.Username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.repos.Users().GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Address:      req.Address,
	}
	if err := s.repos.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login verifies the credentials and returns the account.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repos.Users().GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
