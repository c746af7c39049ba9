// Package users handles registration, login, and session validation.
package users

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/pkg/logger"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Errors returned by the user service.
var (
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrInvalidCredentials = fmt.Errorf("invalid username or password")
	ErrSessionInvalid     = fmt.Errorf("session is invalid or expired")
)

// Service manages user accounts and bearer-token sessions. Tokens are JWTs
// backed by a server-side session row, so logout revokes them immediately.
type Service struct {
	users    storage.UserStore
	profiles storage.ProfileStore
	secret   []byte
	tokenTTL time.Duration
	log      *logger.Logger

	now func() time.Time
}

// New constructs a user service.
func New(users storage.UserStore, profiles storage.ProfileStore, jwtSecret string, tokenTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		users:    users,
		profiles: profiles,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		log:      log,
		now:      time.Now,
	}
}

// Register creates a new account and provisions its gamification profile.
func (s *Service) Register(ctx context.Context, username, email, password string) (user.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)

	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return user.User{}, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return user.User{}, fmt.Errorf("%w: username may contain lowercase letters, digits, and underscores only", ErrInvalidInput)
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return user.User{}, fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return user.User{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return user.User{}, err
	}

	if _, err := s.profiles.EnsureProfile(ctx, u.ID); err != nil {
		return user.User{}, fmt.Errorf("provision profile: %w", err)
	}

	s.log.WithField("user_id", u.ID).
		WithField("username", u.Username).
		Info("user registered")
	return u, nil
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (user.User, string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		// Burn a comparison so missing users cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000"), []byte(password))
		return user.User{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return user.User{}, "", ErrInvalidCredentials
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	token, err := s.signToken(u.ID, now, expiresAt)
	if err != nil {
		return user.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	if _, err := s.users.CreateSession(ctx, user.Session{
		UserID:    u.ID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
	}); err != nil {
		return user.User{}, "", err
	}
	if err := s.users.TouchUserLogin(ctx, u.ID, now); err != nil {
		// Best-effort timestamp; the login itself already succeeded.
		s.log.WithError(err).WithField("user_id", u.ID).Warn("record last login")
	}
	u.LastLoginAt = now

	s.log.WithField("user_id", u.ID).Info("user logged in")
	return u, token, nil
}

// Logout revokes the session behind the token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.users.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil
	}
	return s.users.DeleteSession(ctx, sess.ID)
}

// Authenticate validates a bearer token and returns its user. Both the JWT
// signature and the server-side session must check out.
func (s *Service) Authenticate(ctx context.Context, token string) (user.User, error) {
	userID, err := s.verifyToken(token)
	if err != nil {
		return user.User{}, ErrSessionInvalid
	}

	sess, err := s.users.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil || sess.UserID != userID || sess.Expired(s.now()) {
		return user.User{}, ErrSessionInvalid
	}

	return s.users.GetUser(ctx, userID)
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.users.GetUser(ctx, id)
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.users.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Debug("expired sessions purged")
	}
	return n, nil
}

func (s *Service) signToken(userID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) verifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("malformed claims")
	}
	return claims.Subject, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
