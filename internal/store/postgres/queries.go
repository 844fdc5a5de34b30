package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/store"
)

// subscriptionColumns is the column list used for SELECT statements on the
// subscriptions table.
const subscriptionColumns = `id, kind, organization, team_name, owner, repo, enabled,
	total_open, assigned_to_user, review_requests, stats_updated_at,
	created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateSubscription(ctx context.Context, db executor, sub *model.Subscription) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, kind, organization, team_name, owner, repo, enabled,
			total_open, assigned_to_user, review_requests, stats_updated_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)`,
		sub.ID,
		string(sub.Kind),
		nullString(sub.Organization),
		nullString(sub.TeamName),
		nullString(sub.Owner),
		nullString(sub.Repo),
		sub.Enabled,
		sub.Stats.TotalOpen,
		sub.Stats.AssignedToUser,
		sub.Stats.ReviewRequests,
		nullTime(sub.Stats.LastUpdated),
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	return err
}

func queryGetSubscription(ctx context.Context, db executor, id string) (*model.Subscription, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sub, err
}

func queryListSubscriptions(ctx context.Context, db executor) ([]*model.Subscription, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func queryUpdateSubscription(ctx context.Context, db executor, sub *model.Subscription) error {
	res, err := db.ExecContext(ctx, `
		UPDATE subscriptions
		SET enabled = $2, updated_at = $3
		WHERE id = $1`,
		sub.ID, sub.Enabled, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryUpdateStats(ctx context.Context, db executor, id string, stats model.SubscriptionStats) error {
	res, err := db.ExecContext(ctx, `
		UPDATE subscriptions
		SET total_open = $2, assigned_to_user = $3, review_requests = $4, stats_updated_at = $5
		WHERE id = $1`,
		id, stats.TotalOpen, stats.AssignedToUser, stats.ReviewRequests, nullTime(stats.LastUpdated),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryDeleteSubscription(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryLastNotified(ctx context.Context, db executor, key string) (*time.Time, error) {
	row := db.QueryRowContext(ctx,
		`SELECT last_notified_at FROM notification_log WHERE key = $1`, key)
	var at time.Time
	if err := row.Scan(&at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &at, nil
}

func queryMarkNotified(ctx context.Context, db executor, key string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_log (key, last_notified_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET last_notified_at = EXCLUDED.last_notified_at`,
		key, at,
	)
	return err
}

func queryPruneNotifications(ctx context.Context, db executor, olderThan time.Time) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE last_notified_at < $1`, olderThan)
	return err
}

// requireRow maps a zero-row update/delete to store.ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
