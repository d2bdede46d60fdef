package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/arsia/internal/model"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "linkedin_access_token", "linkedin_refresh_token",
	"linkedin_token_expires_at", "linkedin_person_urn", "linkedin_organization_urn",
	"linkedin_organization_name", "linkedin_connected", "created_at",
}

func newUserRepoWithMock(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresUserRepo(db), mock
}

func TestPostgresUserRepo_FindByID_Found(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(60 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"user-1", "artisan@example.com", "hash", "access", "refresh",
			expires, "urn:li:person:abc", "urn:li:organization:42", "Webysta", true, created,
		))

	user, err := repo.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Email != "artisan@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "artisan@example.com")
	}
	if !user.LinkedIn.Connected || user.LinkedIn.AccessToken != "access" {
		t.Errorf("LinkedIn = %+v, want connected with token", user.LinkedIn)
	}
	if !user.LinkedIn.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", user.LinkedIn.ExpiresAt, expires)
	}
	if user.LinkedIn.OrganizationName != "Webysta" {
		t.Errorf("OrganizationName = %q, want %q", user.LinkedIn.OrganizationName, "Webysta")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByEmail_NotFound_ReturnsNil(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByEmail_NullExpiry(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("artisan@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"user-1", "artisan@example.com", "hash", "", "",
			nil, "", "", "", false, time.Now(),
		))

	user, err := repo.FindByEmail(context.Background(), "artisan@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.LinkedIn.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", user.LinkedIn.ExpiresAt)
	}
}

func TestPostgresUserRepo_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &model.User{ID: "u", Email: "dup@example.com", PasswordHash: "h", CreatedAt: time.Now()})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestPostgresUserRepo_Create_Success(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, email, password_hash, created_at)")).
		WithArgs("u", "new@example.com", "h", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), &model.User{ID: "u", Email: "new@example.com", PasswordHash: "h", CreatedAt: now}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_SaveLinkedInConnection_WritesAllColumns(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	exp := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	conn := model.LinkedInConnection{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		ExpiresAt:        exp,
		PersonURN:        "urn:li:person:abc",
		OrganizationURN:  "urn:li:organization:1",
		OrganizationName: "Webysta",
		Connected:        true,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs("user-1", "access", "refresh", exp, "urn:li:person:abc", "urn:li:organization:1", "Webysta", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveLinkedInConnection(context.Background(), "user-1", conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_SaveLinkedInConnection_RejectsConnectedWithoutToken(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	err := repo.SaveLinkedInConnection(context.Background(), "user-1", model.LinkedInConnection{Connected: true})
	if !errors.Is(err, model.ErrConnectionWithoutToken) {
		t.Errorf("err = %v, want ErrConnectionWithoutToken", err)
	}
	// SQLは発行されない
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL issued: %v", err)
	}
}

func TestPostgresUserRepo_ClearLinkedInConnection_UserMissing(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("linkedin_connected = false")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.ClearLinkedInConnection(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing user, got nil")
	}
}

func TestPostgresUserRepo_DeleteByID(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByID(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
