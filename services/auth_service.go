//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"fmt"
	"log/slog"
	"strings"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/repositories"
)

type IAuthService interface {
	Login(email, password string) (Session, error)
	Register(req auth.RegisterRequest) (Session, error)
	Refresh(token string) (Token, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// Session is returned by register and login.
type Session struct {
	Token Token             `json:"token"`
	User  domain.PublicUser `json:"user"`
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
	log            *slog.Logger
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager, log *slog.Logger) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens, log: log}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Session, error) {
	req.Email = strings.TrimSpace(req.Email)

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return Session{}, err
	}

	// 2. Hash the password using Argon2id
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	user, err := s.userRepository.CreateUser(req.Email, req.DisplayName, hashedPassword)
	if err != nil {
		return Session{}, err // Will propagate ErrUserAlreadyExists if email is taken
	}
	s.log.Info("User registered", "user_id", user.ID)

	// 4. Generate the initial session token
	return s.session(user)
}

func (s *AuthService) Login(email, password string) (Session, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return Session{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	return s.session(user)
}

// Refresh renews a token that is valid or expired for less than the refresh grace.
func (s *AuthService) Refresh(token string) (Token, error) {
	fresh, err := s.tokens.Refresh(token)
	if err != nil {
		return "", err
	}
	return Token(fresh), nil
}

func (s *AuthService) session(user domain.User) (Session, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}
	return Session{Token: Token(token), User: user.Public(false)}, nil
}
