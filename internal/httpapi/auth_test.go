package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aishwaryam567/Retail-management-system/internal/domain"
	"github.com/aishwaryam567/Retail-management-system/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Email] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[email]
	user.Password = password
	s.users[email] = user
	s.updates++
	return nil
}

func stubWithUser(t *testing.T, email string, password string, role string, active bool) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			email: {
				ID:        domain.NewID(),
				Email:     email,
				Password:  string(hash),
				Role:      role,
				Active:    active,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	users := stubWithUser(t, "admin@store.local", "admin123", domain.RoleAdmin, true)
	manager := NewAuthManager("test-secret", time.Hour, users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "Admin@Store.local",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Email != "admin@store.local" {
		t.Fatalf("unexpected actor email %q", actor.Email)
	}
	if actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor role %q", actor.Role)
	}
	if actor.ID == "" {
		t.Fatalf("expected actor id from token subject")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	users := stubWithUser(t, "gone@store.local", "secret1", domain.RoleCashier, false)
	manager := NewAuthManager("test-secret", time.Hour, users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "gone@store.local",
		Password: "secret1",
	})
	if err == nil || !strings.Contains(err.Error(), "inactive") {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@store.local",
		Password: "whatever",
	})
	if err == nil || err.Error() != "invalid credentials" {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "new.cashier@store.local",
		FullName: "New Cashier",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if created.Role != domain.RoleCashier {
		t.Fatalf("expected default cashier role, got %q", created.Role)
	}
	if created.Password != "" {
		t.Fatalf("register response must not carry the password hash")
	}

	stored, err := users.GetUserByEmail(context.Background(), "new.cashier@store.local")
	if err != nil {
		t.Fatalf("expected user to be saved: %v", err)
	}
	if stored.Password == "pass1234" {
		t.Fatalf("expected stored password to be hashed")
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", stored.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "new.cashier@store.local",
		Password: "pass1234",
	}); err != nil {
		t.Fatalf("login with registered account failed: %v", err)
	}
}

func TestRegisterRejectsOwnerRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	_, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "boss@store.local",
		Password: "pass1234",
		Role:     domain.RoleOwner,
	})
	if err == nil {
		t.Fatalf("expected owner registration to be rejected")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	users := stubWithUser(t, "dup@store.local", "secret1", domain.RoleCashier, true)
	manager := NewAuthManager("test-secret", time.Hour, users)

	_, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "dup@store.local",
		Password: "pass1234",
	})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	users := stubWithUser(t, "staff@store.local", "oldpass1", domain.RoleCashier, true)
	manager := NewAuthManager("test-secret", time.Hour, users)
	actor := domain.Actor{Email: "staff@store.local", Role: domain.RoleCashier}

	err := manager.ChangePassword(context.Background(), actor, domain.ChangePasswordRequest{
		CurrentPassword: "wrongpass",
		NewPassword:     "newpass1",
	})
	if err == nil {
		t.Fatalf("expected wrong current password to be rejected")
	}

	err = manager.ChangePassword(context.Background(), actor, domain.ChangePasswordRequest{
		CurrentPassword: "oldpass1",
		NewPassword:     "newpass1",
	})
	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if users.updates != 1 {
		t.Fatalf("expected one password update, got %d", users.updates)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "staff@store.local",
		Password: "newpass1",
	}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := stubWithUser(t, "admin@store.local", "admin123", domain.RoleAdmin, true)
	signer := NewAuthManager("secret-one", time.Hour, users)
	verifier := NewAuthManager("secret-two", time.Hour, users)

	resp, err := signer.Login(context.Background(), domain.LoginRequest{
		Email:    "admin@store.local",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
