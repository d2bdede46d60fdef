package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/arsia/internal/model"
)

func newSessionRepoWithMock(t *testing.T) (*PostgresSessionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresSessionRepo(db), mock
}

func TestPostgresSessionRepo_Revoke_IsIdempotent(t *testing.T) {
	repo, mock := newSessionRepoWithMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (token_id) DO NOTHING")).
		WithArgs("jti-1", "user-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (token_id) DO NOTHING")).
		WithArgs("jti-1", "user-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := &model.RevokedSession{TokenID: "jti-1", UserID: "user-1", ExpiresAt: exp}
	if err := repo.Revoke(context.Background(), s); err != nil {
		t.Fatalf("first revoke: unexpected error: %v", err)
	}
	if err := repo.Revoke(context.Background(), s); err != nil {
		t.Fatalf("second revoke: unexpected error: %v", err)
	}
}

func TestPostgresSessionRepo_IsRevoked(t *testing.T) {
	repo, mock := newSessionRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected revoked = true")
	}
}

func TestPostgresSessionRepo_IsRevoked_DBError(t *testing.T) {
	repo, mock := newSessionRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("jti-1").
		WillReturnError(errors.New("connection refused"))

	if _, err := repo.IsRevoked(context.Background(), "jti-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresSessionRepo_DeleteExpired(t *testing.T) {
	deleteQuery := regexp.QuoteMeta("DELETE FROM revoked_sessions")
	now := time.Now()

	t.Run("1バッチで終わる", func(t *testing.T) {
		repo, mock := newSessionRepoWithMock(t)
		mock.ExpectExec(deleteQuery).
			WithArgs(now, purgeBatchSize).
			WillReturnResult(sqlmock.NewResult(0, 7))

		n, err := repo.DeleteExpired(context.Background(), now)
		if err != nil || n != 7 {
			t.Errorf("DeleteExpired = (%d, %v), want (7, nil)", n, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("満杯のバッチが続く間は繰り返す", func(t *testing.T) {
		repo, mock := newSessionRepoWithMock(t)
		mock.ExpectExec(deleteQuery).WithArgs(now, purgeBatchSize).
			WillReturnResult(sqlmock.NewResult(0, purgeBatchSize))
		mock.ExpectExec(deleteQuery).WithArgs(now, purgeBatchSize).
			WillReturnResult(sqlmock.NewResult(0, purgeBatchSize))
		mock.ExpectExec(deleteQuery).WithArgs(now, purgeBatchSize).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.DeleteExpired(context.Background(), now)
		if err != nil || n != 2*purgeBatchSize+3 {
			t.Errorf("DeleteExpired = (%d, %v), want (%d, nil)", n, err, 2*purgeBatchSize+3)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("途中のエラーはそれまでの件数と返す", func(t *testing.T) {
		repo, mock := newSessionRepoWithMock(t)
		mock.ExpectExec(deleteQuery).WithArgs(now, purgeBatchSize).
			WillReturnResult(sqlmock.NewResult(0, purgeBatchSize))
		mock.ExpectExec(deleteQuery).WithArgs(now, purgeBatchSize).
			WillReturnError(errors.New("canceling statement due to user request"))

		n, err := repo.DeleteExpired(context.Background(), now)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if n != purgeBatchSize {
			t.Errorf("deleted = %d, want %d", n, purgeBatchSize)
		}
	})
}
