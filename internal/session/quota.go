package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// QuotaStatus reports a user's usage against their daily execution quota.
type QuotaStatus struct {
	UserID      string
	Day         string
	Used        int
	LimitPerDay int
}

// Remaining reports how many executions are left for the day.
func (q QuotaStatus) Remaining() int {
	if q.LimitPerDay-q.Used < 0 {
		return 0
	}
	return q.LimitPerDay - q.Used
}

// dayKey formats t as the quota table's per-day partition key.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Admit atomically increments userID's usage for today and reports whether
// the increment fit under defaultLimit, mirroring the teacher's optimistic
// compare-and-set update in internal/workflow.Store.Update but applied to a
// counter instead of a version number: the UPDATE's WHERE clause only
// matches rows still under quota, so a losing admission simply updates zero
// rows instead of racing a read-then-write check.
func (s *Store) Admit(ctx context.Context, userID string, defaultLimit int) (QuotaStatus, bool, error) {
	day := dayKey(time.Now())

	if _, err := s.db.UpsertIgnore(ctx,
		`INSERT INTO quotas (user_id, day, used, limit_per_day) VALUES (?, ?, 0, ?)
		 ON CONFLICT(user_id, day) DO NOTHING`,
		`INSERT IGNORE INTO quotas (user_id, day, used, limit_per_day) VALUES (?, ?, 0, ?)`,
		userID, day, defaultLimit,
	); err != nil {
		return QuotaStatus{}, false, apperr.Wrap(apperr.KindInfrastructure, "ensure quota row", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE quotas SET used = used + 1
		WHERE user_id = ? AND day = ? AND used < limit_per_day`, userID, day,
	)
	if err != nil {
		return QuotaStatus{}, false, apperr.Wrap(apperr.KindInfrastructure, "increment quota", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return QuotaStatus{}, false, apperr.Wrap(apperr.KindInfrastructure, "read quota update result", err)
	}

	status, err := s.quotaStatus(ctx, userID, day)
	if err != nil {
		return QuotaStatus{}, false, err
	}
	if affected == 0 {
		return status, false, nil
	}
	return status, true, nil
}

// UsageToday reports userID's quota status for the current day without
// admitting a new execution, the read-only counterpart to Admit used by
// GET /users/me/usage. A user with no executions yet today has no quota
// row, so a missing row reports zero usage against defaultLimit rather
// than a not-found error.
func (s *Store) UsageToday(ctx context.Context, userID string, defaultLimit int) (QuotaStatus, error) {
	day := dayKey(time.Now())
	status, err := s.quotaStatus(ctx, userID, day)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return QuotaStatus{UserID: userID, Day: day, Used: 0, LimitPerDay: defaultLimit}, nil
		}
		return QuotaStatus{}, err
	}
	return status, nil
}

func (s *Store) quotaStatus(ctx context.Context, userID, day string) (QuotaStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, day, used, limit_per_day FROM quotas WHERE user_id = ? AND day = ?`, userID, day)
	var q QuotaStatus
	if err := row.Scan(&q.UserID, &q.Day, &q.Used, &q.LimitPerDay); err != nil {
		if err == sql.ErrNoRows {
			return QuotaStatus{}, apperr.New(apperr.KindNotFound, "no quota row")
		}
		return QuotaStatus{}, apperr.Wrap(apperr.KindInfrastructure, "scan quota", err)
	}
	return q, nil
}
