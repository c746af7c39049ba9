package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitloop/habitloop/internal/app/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	return New(store, store, "test-secret", time.Hour, nil), store
}

func TestRegister(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "  Alice_01  ", "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Username != "alice_01" {
		t.Fatalf("expected lowercased username, got %q", u.Username)
	}
	if u.PasswordHash == "correct horse" || u.PasswordHash == "" {
		t.Fatalf("expected hashed password")
	}

	// Registration provisions the gamification profile.
	p, err := store.GetProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("expected profile provisioned: %v", err)
	}
	if p.Level != 1 || p.TotalXP != 0 {
		t.Fatalf("expected fresh profile, got %+v", p)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "ab", "longenough"},
		{"bad characters", "bad name!", "longenough"},
		{"short password", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.username, "", tc.password); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, "ALICE", "", "longenough")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	u, token, err := svc.Login(ctx, "alice", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}
	if u.LastLoginAt.IsZero() {
		t.Fatalf("expected last login recorded")
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated as %s, expected %s", got.ID, u.ID)
	}
}

// touchFailStore simulates a store where the last-login write fails.
type touchFailStore struct {
	*memory.Store
}

func (s *touchFailStore) TouchUserLogin(context.Context, string, time.Time) error {
	return errors.New("transient write failure")
}

func TestLoginSurvivesLastLoginWriteFailure(t *testing.T) {
	store := memory.New()
	svc := New(&touchFailStore{Store: store}, store, "test-secret", time.Hour, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	u, token, err := svc.Login(ctx, "alice", "longenough")
	if err != nil {
		t.Fatalf("login should tolerate a failed last-login write: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}
	if u.LastLoginAt.IsZero() {
		t.Fatalf("expected last login set on the returned user")
	}

	if _, err := svc.Authenticate(ctx, token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := svc.Login(ctx, "alice", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after logout, got %v", err)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Authenticate(context.Background(), "not-a-jwt"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := svc.Login(ctx, "alice", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Jump past the session expiry.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for expired session, got %v", err)
	}

	purged, err := svc.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("purge sessions: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}
}
