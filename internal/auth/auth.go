package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/db"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingUsername    = errors.New("missing username")
	ErrMissingPassword    = errors.New("missing password")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameTooLong    = errors.New("username too long (max 50 characters)")
	ErrPasswordTooLong    = errors.New("password too long (max 72 bytes)")
	ErrUsernameTaken      = db.ErrUsernameTaken
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	maxUsernameLen = 50
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

// AuthService handles registration, credential checks and session tokens
type AuthService struct {
	DB           db.Store
	secret       []byte
	ttl          time.Duration
	startingCash decimal.Decimal
}

// NewAuthService creates a new auth service
func NewAuthService(store db.Store, secret []byte, ttl time.Duration, startingCash decimal.Decimal) *AuthService {
	return &AuthService{DB: store, secret: secret, ttl: ttl, startingCash: startingCash}
}

// Register creates a new user with hashed password and the starting cash balance
func (s *AuthService) Register(ctx context.Context, username, password, confirmation string) (int, error) {
	// Validate input
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrMissingUsername
	}
	if password == "" || confirmation == "" {
		return 0, ErrMissingPassword
	}
	if password != confirmation {
		return 0, ErrPasswordMismatch
	}
	if len(username) > maxUsernameLen {
		return 0, ErrUsernameTooLong
	}
	if len(password) > maxPasswordLen {
		return 0, ErrPasswordTooLong
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	// Uniqueness is enforced by the store
	user, err := s.DB.CreateUser(ctx, username, string(hashedPassword), s.startingCash)
	if err != nil {
		if errors.Is(err, db.ErrUsernameTaken) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return user.ID, nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords both
// yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (int, error) {
	user, err := s.DB.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Burn the same time as a real comparison.
			bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return 0, ErrInvalidCredentials
		}
		return 0, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return user.ID, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	return s.IssueToken(ctx, userID)
}

// IsUsernameAvailable reports whether candidate could be registered
func (s *AuthService) IsUsernameAvailable(ctx context.Context, candidate string) (bool, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false, nil
	}
	exists, err := s.DB.UsernameExists(ctx, candidate)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// IssueToken signs a session token for the user. The token is bound to the
// account's creation time so it cannot outlive the account it was issued for.
func (s *AuthService) IssueToken(ctx context.Context, userID int) (string, error) {
	user, err := s.DB.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      user.ID,
		"user_created": user.CreatedAt.UnixMicro(),
		"exp":          time.Now().Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Verify checks a session token and returns the user it belongs to. Tokens
// for accounts that no longer exist, or were recreated under the same id,
// are rejected with ErrInvalidToken.
func (s *AuthService) Verify(ctx context.Context, tokenString string) (int, error) {
	userID, created, err := s.parseToken(tokenString)
	if err != nil {
		return 0, err
	}
	user, err := s.DB.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("failed to get user: %w", err)
	}
	if user.CreatedAt.UnixMicro() != created {
		return 0, ErrInvalidToken
	}
	return user.ID, nil
}

func (s *AuthService) parseToken(tokenString string) (int, int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, 0, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID < 1 {
		return 0, 0, ErrInvalidToken
	}
	created, ok := claims["user_created"].(float64)
	if !ok {
		return 0, 0, ErrInvalidToken
	}
	return int(userID), int64(created), nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	return dummy
}
