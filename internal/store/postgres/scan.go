package postgres

import (
	"database/sql"
	"time"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSubscription scans a single row into a model.Subscription.
// The row must contain columns in the order defined by subscriptionColumns.
func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var (
		organization   sql.NullString
		teamName       sql.NullString
		owner          sql.NullString
		repo           sql.NullString
		statsUpdatedAt sql.NullTime
	)

	err := row.Scan(
		&sub.ID,
		&sub.Kind,
		&organization,
		&teamName,
		&owner,
		&repo,
		&sub.Enabled,
		&sub.Stats.TotalOpen,
		&sub.Stats.AssignedToUser,
		&sub.Stats.ReviewRequests,
		&statsUpdatedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Organization = organization.String
	sub.TeamName = teamName.String
	sub.Owner = owner.String
	sub.Repo = repo.String
	if statsUpdatedAt.Valid {
		sub.Stats.LastUpdated = statsUpdatedAt.Time
	}

	return &sub, nil
}

// scanSubscriptions scans multiple rows into a slice of subscriptions.
func scanSubscriptions(rows *sql.Rows) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

// nullTime converts a time.Time to sql.NullTime; the zero time is null.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
