package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"sheets/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	users      map[int64]store.User
	emailIndex map[string]int64
	nextID     int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[int64]store.User),
		emailIndex: make(map[string]int64),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.users[id], nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetUserByID(_ context.Context, id int64) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) UpdateUserPassword(_ context.Context, userID int64, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func newTestService(m *mockUserStore) *Service {
	svc := NewService(m)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	m := newMockUserStore()
	svc := newTestService(m)

	user, err := svc.SignUp(ctx, SignUpRequest{
		Email:     "  Avery@Example.com ",
		Password:  "password123",
		FirstName: "Avery",
		LastName:  "Cohen",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.ID != 1 || user.Email != "avery@example.com" || user.DisplayName() != "Avery Cohen" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "password123" {
		t.Fatal("password stored in clear text")
	}

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "avery@example.com", Password: "password456", FirstName: "Other"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := newTestService(newMockUserStore())
	tests := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"missing email", SignUpRequest{Password: "password123", FirstName: "A"}, ErrMissingFields},
		{"missing first name", SignUpRequest{Email: "a@b.c", Password: "password123"}, ErrMissingFields},
		{"bad email", SignUpRequest{Email: "nobody", Password: "password123", FirstName: "A"}, ErrInvalidEmail},
		{"trailing at", SignUpRequest{Email: "nobody@", Password: "password123", FirstName: "A"}, ErrInvalidEmail},
		{"short password", SignUpRequest{Email: "a@b.c", Password: "short", FirstName: "A"}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMockUserStore())
	created, err := svc.SignUp(ctx, SignUpRequest{Email: "avery@example.com", Password: "password123", FirstName: "Avery"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "AVERY@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %d, got %d", created.ID, user.ID)
	}

	for _, req := range []SignInRequest{
		{Email: "avery@example.com", Password: "wrongpassword"},
		{Email: "nobody@example.com", Password: "password123"},
		{Email: "", Password: "password123"},
	} {
		if _, err := svc.SignIn(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("SignIn(%+v) error = %v, want ErrInvalidCredentials", req, err)
		}
	}
}

func TestSetPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMockUserStore())
	user, err := svc.SignUp(ctx, SignUpRequest{Email: "avery@example.com", Password: "password123", FirstName: "Avery"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if err := svc.SetPassword(ctx, user.ID, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.SetPassword(ctx, user.ID, "newpassword1"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "newpassword1"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
	if err := svc.SetPassword(ctx, 99, "newpassword1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown user, got %v", err)
	}
}
