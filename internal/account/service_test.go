package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/repository"
	"github.com/hitoshi/arsia/internal/storage"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockUserRepo) FindByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error {
	return nil
}

func (m *mockUserRepo) SaveLinkedInConnection(_ context.Context, _ string, _ model.LinkedInConnection) error {
	return nil
}

func (m *mockUserRepo) ClearLinkedInConnection(_ context.Context, _ string) error {
	return nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockPublicationRepo struct {
	repository.PublicationRepository
	listImageURLsFn func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockPublicationRepo) ListImageURLsByUserID(ctx context.Context, userID string) ([]string, error) {
	return m.listImageURLsFn(ctx, userID)
}

type mockStorage struct {
	deleted  []string
	failRefs map[string]bool
}

func (m *mockStorage) Save(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	return "", nil
}

func (m *mockStorage) Open(_ context.Context, _ string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStorage) Owns(ref string) bool {
	return strings.HasPrefix(ref, "/uploads/")
}

func (m *mockStorage) Delete(_ context.Context, ref string) error {
	if m.failRefs[ref] {
		return errors.New("disk error")
	}
	m.deleted = append(m.deleted, ref)
	return nil
}

type mockRevoker struct {
	logoutFn func(ctx context.Context, claims *auth.Claims) error
}

func (m *mockRevoker) Logout(ctx context.Context, claims *auth.Claims) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, claims)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ storage.Storage = (*mockStorage)(nil)
var _ SessionRevoker = (*auth.Service)(nil)

func testClaims(t *testing.T) *auth.Claims {
	t.Helper()
	_, claims, err := auth.NewTokenManager("secret", time.Hour).Issue("u1", "a@example.com")
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	return claims
}

// --- テスト ---

func TestDelete_RemovesUserImagesAndRevokesToken(t *testing.T) {
	var order []string
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(_ context.Context, id string) error {
			order = append(order, "delete-user:"+id)
			return nil
		},
	}
	pubs := &mockPublicationRepo{listImageURLsFn: func(context.Context, string) ([]string, error) {
		order = append(order, "list-images")
		return []string{"/uploads/a.jpg", "https://elsewhere.example.com/b.jpg", "/uploads/c.png"}, nil
	}}
	store := &mockStorage{failRefs: map[string]bool{"/uploads/c.png": true}}
	var revoked *auth.Claims
	revoker := &mockRevoker{logoutFn: func(_ context.Context, c *auth.Claims) error {
		revoked = c
		return nil
	}}
	svc := NewService(users, pubs, store, revoker)

	claims := testClaims(t)
	if err := svc.Delete(context.Background(), claims); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Join(order, ",") != "list-images,delete-user:u1" {
		t.Errorf("order = %v, want images listed before deletion", order)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "/uploads/a.jpg" {
		t.Errorf("deleted = %v, want only owned refs that could be removed", store.deleted)
	}
	if revoked != claims {
		t.Error("expected current token to be revoked")
	}
}

func TestDelete_UserNotFound(t *testing.T) {
	users := &mockUserRepo{findByIDFn: func(context.Context, string) (*model.User, error) {
		return nil, nil
	}}
	svc := NewService(users, &mockPublicationRepo{}, &mockStorage{}, &mockRevoker{})

	err := svc.Delete(context.Background(), testClaims(t))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestDelete_RevokeFailure_IsNotFatal(t *testing.T) {
	users := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		return &model.User{ID: id}, nil
	}}
	pubs := &mockPublicationRepo{listImageURLsFn: func(context.Context, string) ([]string, error) {
		return nil, nil
	}}
	revoker := &mockRevoker{logoutFn: func(context.Context, *auth.Claims) error {
		return errors.New("db down")
	}}
	svc := NewService(users, pubs, &mockStorage{}, revoker)

	if err := svc.Delete(context.Background(), testClaims(t)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDelete_DeleteFailure_KeepsImages(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(context.Context, string) error {
			return errors.New("db down")
		},
	}
	pubs := &mockPublicationRepo{listImageURLsFn: func(context.Context, string) ([]string, error) {
		return []string{"/uploads/a.jpg"}, nil
	}}
	store := &mockStorage{}
	svc := NewService(users, pubs, store, &mockRevoker{})

	if err := svc.Delete(context.Background(), testClaims(t)); err == nil {
		t.Fatal("expected error")
	}
	if len(store.deleted) != 0 {
		t.Errorf("deleted = %v, want none", store.deleted)
	}
}
