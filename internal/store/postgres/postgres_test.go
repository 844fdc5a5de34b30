package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// subscriptionRowColumns is the column list for scanSubscription results.
var subscriptionRowColumns = []string{
	"id", "kind", "organization", "team_name", "owner", "repo", "enabled",
	"total_open", "assigned_to_user", "review_requests", "stats_updated_at",
	"created_at", "updated_at",
}

func addSubscriptionRow(rows *sqlmock.Rows, id, kind string, enabled bool, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, kind, "acme", "core", nil, nil, enabled,
		3, 1, 2, now,
		now, now,
	)
}

func TestPostgresStore_CreateSubscription(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs("acme/core", "team", "acme", "core", nil, nil, true,
			0, 0, 0, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateSubscription(context.Background(), &model.Subscription{
		ID:           "acme/core",
		Kind:         model.KindTeam,
		Organization: "acme",
		TeamName:     "core",
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
}

func TestPostgresStore_GetSubscription(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	rows := sqlmock.NewRows(subscriptionRowColumns)
	addSubscriptionRow(rows, "acme/core", "team", true, now)
	mock.ExpectQuery("SELECT .+ FROM subscriptions WHERE id = \\$1").
		WithArgs("acme/core").
		WillReturnRows(rows)

	sub, err := s.GetSubscription(context.Background(), "acme/core")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Kind != model.KindTeam || sub.Organization != "acme" || sub.TeamName != "core" {
		t.Errorf("sub = %+v", sub)
	}
	if sub.Stats.TotalOpen != 3 || sub.Stats.AssignedToUser != 1 || sub.Stats.ReviewRequests != 2 {
		t.Errorf("stats = %+v", sub.Stats)
	}
}

func TestPostgresStore_GetSubscriptionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT .+ FROM subscriptions WHERE id = \\$1").
		WithArgs("ghost/team").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetSubscription(context.Background(), "ghost/team")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestPostgresStore_ListSubscriptions(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	rows := sqlmock.NewRows(subscriptionRowColumns)
	addSubscriptionRow(rows, "acme/core", "team", true, now)
	addSubscriptionRow(rows, "acme/infra", "team", false, now)
	mock.ExpectQuery("SELECT .+ FROM subscriptions ORDER BY created_at ASC").
		WillReturnRows(rows)

	subs, err := s.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "acme/core" || subs[1].Enabled {
		t.Errorf("subs = %+v", subs)
	}
}

func TestPostgresStore_UpdateStats(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	mock.ExpectExec("UPDATE subscriptions").
		WithArgs("acme/core", 5, 2, 3, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateStats(context.Background(), "acme/core", model.SubscriptionStats{
		TotalOpen:      5,
		AssignedToUser: 2,
		ReviewRequests: 3,
		LastUpdated:    now,
	})
	if err != nil {
		t.Fatalf("UpdateStats: %v", err)
	}
}

func TestPostgresStore_DeleteSubscriptionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectExec("DELETE FROM subscriptions WHERE id = \\$1").
		WithArgs("ghost/team").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteSubscription(context.Background(), "ghost/team")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestPostgresStore_LastNotified(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	mock.ExpectQuery("SELECT last_notified_at FROM notification_log WHERE key = \\$1").
		WithArgs("review_requested:acme/lib-a#12").
		WillReturnRows(sqlmock.NewRows([]string{"last_notified_at"}).AddRow(now))

	at, err := s.LastNotified(context.Background(), "review_requested:acme/lib-a#12")
	if err != nil {
		t.Fatalf("LastNotified: %v", err)
	}
	if at == nil || !at.Equal(now) {
		t.Errorf("at = %v, want %v", at, now)
	}
}

func TestPostgresStore_LastNotifiedUnknownKeyIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT last_notified_at FROM notification_log WHERE key = \\$1").
		WithArgs("never-seen").
		WillReturnError(sql.ErrNoRows)

	at, err := s.LastNotified(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("LastNotified: %v", err)
	}
	if at != nil {
		t.Errorf("at = %v, want nil", at)
	}
}

func TestPostgresStore_MarkNotifiedUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	mock.ExpectExec("INSERT INTO notification_log").
		WithArgs("assigned:acme/lib-a#7", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkNotified(context.Background(), "assigned:acme/lib-a#7", now); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
}

func TestPostgresStore_RunInTransactionCommits(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM subscriptions WHERE id = \\$1").
		WithArgs("acme/core").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM notification_log WHERE last_notified_at < \\$1").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if err := tx.DeleteSubscription(context.Background(), "acme/core"); err != nil {
			return err
		}
		return tx.PruneNotifications(context.Background(), now)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestPostgresStore_RunInTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestScanHelpers(t *testing.T) {
	if nullTime(time.Time{}).Valid {
		t.Error("nullTime(zero) should be invalid")
	}
	now := time.Now()
	if nt := nullTime(now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTime(now) = %v", nt)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("hello"); !ns.Valid || ns.String != "hello" {
		t.Errorf("nullString(\"hello\") = %v", ns)
	}
}
