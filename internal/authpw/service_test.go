package authpw

import (
	"context"
	"errors"
	"testing"

	"scriptflow/api/internal/store"
)

type memoryUserStore struct {
	byEmail map[string]store.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{byEmail: map[string]store.User{}}
}

func (m *memoryUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return store.User{}, errors.New("not found")
	}
	return user, nil
}

func (m *memoryUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, errors.New("not found")
}

func (m *memoryUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.byEmail[user.Email] = user
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newMemoryUserStore())
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "maya@example.com",
		Password:    "correct-horse",
		DisplayName: "Maya",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if created.ID == "" {
		t.Fatal("sign up returned no id")
	}
	if created.PasswordHash == "correct-horse" {
		t.Fatal("password stored in the clear")
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "maya@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("signed in as %s, want %s", user.ID, created.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMemoryUserStore())
	ctx := context.Background()

	req := SignUpRequest{Email: "maya@example.com", Password: "correct-horse", DisplayName: "Maya"}
	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	if _, err := svc.SignUp(ctx, req); err == nil {
		t.Fatal("duplicate email accepted")
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newMemoryUserStore())
	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "maya@example.com",
		Password:    "short",
		DisplayName: "Maya",
	})
	if err == nil {
		t.Fatal("short password accepted")
	}
}

func TestSignInWrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	svc := NewService(newMemoryUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "maya@example.com", Password: "correct-horse", DisplayName: "Maya"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	_, wrongPassword := svc.SignIn(ctx, SignInRequest{Email: "maya@example.com", Password: "wrong"})
	_, unknownEmail := svc.SignIn(ctx, SignInRequest{Email: "ghost@example.com", Password: "whatever"})
	if wrongPassword == nil || unknownEmail == nil {
		t.Fatal("expected both sign-ins to fail")
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("error messages differ: %q vs %q", wrongPassword, unknownEmail)
	}
}
