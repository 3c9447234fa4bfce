package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

type fakeUserRepo struct {
	byBID   map[string]*types.User
	byEmail map[string]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byBID: map[string]*types.User{}, byEmail: map[string]*types.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, row *types.User) error {
	f.byBID[row.BID] = row
	f.byEmail[row.Email] = row
	return nil
}

func (f *fakeUserRepo) GetByBID(ctx context.Context, tx *gorm.DB, bid string) (*types.User, error) {
	if u, ok := f.byBID[bid]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUserRepo) SetPaid(ctx context.Context, tx *gorm.DB, bid string, paid bool) error {
	if u, ok := f.byBID[bid]; ok {
		u.Paid = paid
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) SetMobile(ctx context.Context, tx *gorm.DB, bid, mobile string) error {
	if u, ok := f.byBID[bid]; ok {
		u.Mobile = mobile
		return nil
	}
	return gorm.ErrRecordNotFound
}

func newTestAuth() (AuthService, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return NewAuthService(logger.NewNop(), repo, "test-secret", time.Hour), repo
}

func TestRegisterLoginRoundtrip(t *testing.T) {
	auth, repo := newTestAuth()

	user, token, err := auth.Register(context.Background(), "Learner@Example.com", "sup3rsecret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "learner@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	if token == "" {
		t.Fatalf("register must issue a token")
	}
	if repo.byEmail["learner@example.com"].PasswordHash == "sup3rsecret" {
		t.Fatalf("password stored in clear")
	}

	got, err := auth.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got.BID != user.BID {
		t.Fatalf("verified user = %s, want %s", got.BID, user.BID)
	}

	if _, _, err := auth.Login(context.Background(), "learner@example.com", "sup3rsecret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	auth, _ := newTestAuth()
	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{"bad email", "not-an-email", "longenough", "INVALID_EMAIL"},
		{"short password", "a@b.c", "short", "WEAK_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := auth.Register(context.Background(), tt.email, tt.password)
			var ae *apierr.Error
			if !errors.As(err, &ae) || ae.Code != tt.wantCode {
				t.Fatalf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	auth, _ := newTestAuth()
	if _, _, err := auth.Register(context.Background(), "a@b.c", "longenough"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := auth.Register(context.Background(), "a@b.c", "longenough")
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth, _ := newTestAuth()
	if _, _, err := auth.Register(context.Background(), "a@b.c", "longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, creds := range [][2]string{
		{"a@b.c", "wrongpassword"},
		{"nobody@b.c", "longenough"},
	} {
		_, _, err := auth.Login(context.Background(), creds[0], creds[1])
		var ae *apierr.Error
		if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized || ae.Code != "INVALID_CREDENTIALS" {
			t.Fatalf("Login(%s) err = %v, want INVALID_CREDENTIALS", creds[0], err)
		}
	}
}

func TestVerifyTokenRejectsForgeries(t *testing.T) {
	auth, _ := newTestAuth()
	_, token, err := auth.Register(context.Background(), "a@b.c", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	other := NewAuthService(logger.NewNop(), newFakeUserRepo(), "different-secret", time.Hour)
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := other.VerifyToken(context.Background(), tt.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	repo := newFakeUserRepo()
	auth := NewAuthService(logger.NewNop(), repo, "test-secret", -time.Minute)
	_, token, err := auth.Register(context.Background(), "a@b.c", "longenough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := auth.VerifyToken(context.Background(), token); err == nil {
		t.Fatalf("expired token accepted")
	}
}
