package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	rewarddomain "leaflog/internal/modules/reward/domain"
	"leaflog/internal/modules/session/domain"
	sessionout "leaflog/internal/modules/session/port/out"
	apperrors "leaflog/internal/platform/errors"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore is the shared persistent store behind every surface. Its
// transactions are the only true mutual exclusion in the system.
type SQLiteStore struct {
	db *sql.DB
	// faultLog receives a line whenever the store self-heals; degradation is
	// logged, never surfaced as user-visible duplicate state.
	faultLog io.Writer
}

func NewSQLiteStore(db *sql.DB, faultLog io.Writer) (*SQLiteStore, error) {
	if faultLog == nil {
		faultLog = io.Discard
	}
	store := &SQLiteStore{db: db, faultLog: faultLog}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS active_sessions (
  id TEXT PRIMARY KEY,
  book_id TEXT NOT NULL,
  started_at TEXT NOT NULL,
  start_page INTEGER NOT NULL,
  current_page INTEGER NOT NULL,
  paused INTEGER NOT NULL DEFAULT 0,
  paused_at TEXT,
  paused_total_secs INTEGER NOT NULL DEFAULT 0,
  last_updated TEXT NOT NULL,
  origin TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS completed_sessions (
  id TEXT PRIMARY KEY,
  book_id TEXT NOT NULL,
  started_at TEXT NOT NULL,
  ended_at TEXT NOT NULL,
  start_page INTEGER NOT NULL,
  end_page INTEGER NOT NULL,
  pages_read INTEGER NOT NULL,
  duration_minutes INTEGER NOT NULL,
  points_awarded INTEGER NOT NULL,
  awarded_reward INTEGER NOT NULL,
  source TEXT NOT NULL,
  counts_in_stats INTEGER NOT NULL,
  origin TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS profile (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  current_streak INTEGER NOT NULL,
  longest_streak INTEGER NOT NULL,
  last_read_date TEXT,
  last_grace_date TEXT,
  total_points INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS streak_events (
  id TEXT PRIMARY KEY,
  gap_date TEXT NOT NULL,
  used_at TEXT NOT NULL,
  streak_at_use INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS achievements (
  type TEXT PRIMARY KEY,
  unlocked_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create session tables: %w", err)
	}
	return nil
}

// Current returns the single active session. If a fault left more than one
// row behind, the most recently updated wins and the rest are deleted.
func (s *SQLiteStore) Current(ctx context.Context) (domain.ActiveSession, error) {
	const query = `
SELECT id, book_id, started_at, start_page, current_page, paused, paused_at, paused_total_secs, last_updated, origin
FROM active_sessions ORDER BY last_updated DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return domain.ActiveSession{}, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ActiveSession
	for rows.Next() {
		session, err := scanActive(rows)
		if err != nil {
			return domain.ActiveSession{}, fmt.Errorf("scan active session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return domain.ActiveSession{}, err
	}
	if len(sessions) == 0 {
		return domain.ActiveSession{}, apperrors.ErrNoActiveSession
	}
	if len(sessions) > 1 {
		fmt.Fprintf(s.faultLog, "store fault: %d active sessions found, keeping %s\n", len(sessions), sessions[0].ID)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM active_sessions WHERE id != ?`, sessions[0].ID); err != nil {
			return domain.ActiveSession{}, fmt.Errorf("self-heal active sessions: %w", err)
		}
	}
	return sessions[0], nil
}

func (s *SQLiteStore) Create(ctx context.Context, session domain.ActiveSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM active_sessions`).Scan(&existing); err != nil {
		return fmt.Errorf("count active sessions: %w", err)
	}
	if existing > 0 {
		return apperrors.ErrSessionConflict
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO active_sessions (id, book_id, started_at, start_page, current_page, paused, paused_at, paused_total_secs, last_updated, origin)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.BookID,
		session.StartedAt.Format(timeLayout),
		session.StartPage,
		session.CurrentPage,
		boolToInt(session.Paused),
		nullableTime(session.PausedAt),
		int64(session.PausedTotal.Seconds()),
		session.LastUpdated.Format(timeLayout),
		string(session.Origin),
	); err != nil {
		return fmt.Errorf("insert active session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Mutate(ctx context.Context, session domain.ActiveSession) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE active_sessions
SET current_page = ?, paused = ?, paused_at = ?, paused_total_secs = ?, last_updated = ?
WHERE id = ?`,
		session.CurrentPage,
		boolToInt(session.Paused),
		nullableTime(session.PausedAt),
		int64(session.PausedTotal.Seconds()),
		session.LastUpdated.Format(timeLayout),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update active session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update active session: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

// Finish deletes the active row and persists the completed record plus the
// reward side effects in one transaction, or none of it. A second finisher
// deletes zero rows and gets ErrSessionNotFound.
func (s *SQLiteStore) Finish(ctx context.Context, sessionID string, rec sessionout.FinishRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM active_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete active session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete active session: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrSessionNotFound
	}

	completed := rec.Completed
	if _, err := tx.ExecContext(ctx, `
INSERT INTO completed_sessions (id, book_id, started_at, ended_at, start_page, end_page, pages_read, duration_minutes, points_awarded, awarded_reward, source, counts_in_stats, origin)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		completed.ID,
		completed.BookID,
		completed.StartedAt.Format(timeLayout),
		completed.EndedAt.Format(timeLayout),
		completed.StartPage,
		completed.EndPage,
		completed.PagesRead,
		completed.DurationMinutes,
		completed.PointsAwarded,
		boolToInt(completed.AwardedReward),
		string(completed.Source),
		boolToInt(completed.CountsInStats),
		string(completed.Origin),
	); err != nil {
		return fmt.Errorf("insert completed session: %w", err)
	}

	if err := upsertProfile(ctx, tx, rec.Profile); err != nil {
		return err
	}
	if rec.GraceEvent != nil {
		event := rec.GraceEvent
		if _, err := tx.ExecContext(ctx, `
INSERT INTO streak_events (id, gap_date, used_at, streak_at_use) VALUES (?, ?, ?, ?)`,
			event.ID,
			event.GapDate.Format(timeLayout),
			event.UsedAt.Format(timeLayout),
			event.StreakAtUse,
		); err != nil {
			return fmt.Errorf("insert streak event: %w", err)
		}
	}
	for _, achievement := range rec.Achievements {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO achievements (type, unlocked_at) VALUES (?, ?)
ON CONFLICT(type) DO NOTHING`,
			string(achievement),
			completed.EndedAt.Format(timeLayout),
		); err != nil {
			return fmt.Errorf("insert achievement: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Discard(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM active_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

// ImportCompleted persists a finish that happened on another surface. The
// primary key makes replays no-ops, and there may be no active row to delete:
// the companion can learn about a finish whose start it never saw.
func (s *SQLiteStore) ImportCompleted(ctx context.Context, completed domain.CompletedSession) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO completed_sessions (id, book_id, started_at, ended_at, start_page, end_page, pages_read, duration_minutes, points_awarded, awarded_reward, source, counts_in_stats, origin)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		completed.ID,
		completed.BookID,
		completed.StartedAt.Format(timeLayout),
		completed.EndedAt.Format(timeLayout),
		completed.StartPage,
		completed.EndPage,
		completed.PagesRead,
		completed.DurationMinutes,
		completed.PointsAwarded,
		boolToInt(completed.AwardedReward),
		string(completed.Source),
		boolToInt(completed.CountsInStats),
		string(completed.Origin),
	); err != nil {
		return fmt.Errorf("import completed session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Profile(ctx context.Context) (rewarddomain.Profile, error) {
	const query = `SELECT current_streak, longest_streak, last_read_date, last_grace_date, total_points FROM profile WHERE id = 1`
	var profile rewarddomain.Profile
	var lastRead, lastGrace sql.NullString
	err := s.db.QueryRowContext(ctx, query).Scan(&profile.CurrentStreak, &profile.LongestStreak, &lastRead, &lastGrace, &profile.TotalPoints)
	if errors.Is(err, sql.ErrNoRows) {
		return rewarddomain.Profile{}, nil
	}
	if err != nil {
		return rewarddomain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.LastReadDate, err = parseNullableTime(lastRead); err != nil {
		return rewarddomain.Profile{}, fmt.Errorf("parse last_read_date: %w", err)
	}
	if profile.LastGraceDate, err = parseNullableTime(lastGrace); err != nil {
		return rewarddomain.Profile{}, fmt.Errorf("parse last_grace_date: %w", err)
	}
	return profile, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile rewarddomain.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save profile: %w", err)
	}
	defer tx.Rollback()
	if err := upsertProfile(ctx, tx, profile); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertProfile(ctx context.Context, tx *sql.Tx, profile rewarddomain.Profile) error {
	const stmt = `
INSERT INTO profile (id, current_streak, longest_streak, last_read_date, last_grace_date, total_points)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  current_streak=excluded.current_streak,
  longest_streak=excluded.longest_streak,
  last_read_date=excluded.last_read_date,
  last_grace_date=excluded.last_grace_date,
  total_points=excluded.total_points;
`
	if _, err := tx.ExecContext(ctx, stmt,
		profile.CurrentStreak,
		profile.LongestStreak,
		nullableTime(profile.LastReadDate),
		nullableTime(profile.LastGraceDate),
		profile.TotalPoints,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context) ([]domain.CompletedSession, error) {
	const query = `
SELECT id, book_id, started_at, ended_at, start_page, end_page, pages_read, duration_minutes, points_awarded, awarded_reward, source, counts_in_stats, origin
FROM completed_sessions ORDER BY ended_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.CompletedSession
	for rows.Next() {
		var completed domain.CompletedSession
		var startedAt, endedAt, source, origin string
		var awarded, counts int
		if err := rows.Scan(&completed.ID, &completed.BookID, &startedAt, &endedAt, &completed.StartPage, &completed.EndPage, &completed.PagesRead, &completed.DurationMinutes, &completed.PointsAwarded, &awarded, &source, &counts, &origin); err != nil {
			return nil, fmt.Errorf("scan completed session: %w", err)
		}
		if completed.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if completed.EndedAt, err = time.Parse(timeLayout, endedAt); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		completed.AwardedReward = awarded != 0
		completed.CountsInStats = counts != 0
		completed.Source = domain.SessionSource(source)
		completed.Origin = domain.Surface(origin)
		history = append(history, completed)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) StreakEvents(ctx context.Context) ([]rewarddomain.StreakEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, gap_date, used_at, streak_at_use FROM streak_events ORDER BY used_at`)
	if err != nil {
		return nil, fmt.Errorf("query streak events: %w", err)
	}
	defer rows.Close()

	var events []rewarddomain.StreakEvent
	for rows.Next() {
		var event rewarddomain.StreakEvent
		var gapDate, usedAt string
		if err := rows.Scan(&event.ID, &gapDate, &usedAt, &event.StreakAtUse); err != nil {
			return nil, fmt.Errorf("scan streak event: %w", err)
		}
		if event.GapDate, err = time.Parse(timeLayout, gapDate); err != nil {
			return nil, fmt.Errorf("parse gap_date: %w", err)
		}
		if event.UsedAt, err = time.Parse(timeLayout, usedAt); err != nil {
			return nil, fmt.Errorf("parse used_at: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Unlocked(ctx context.Context) (map[rewarddomain.AchievementType]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type FROM achievements`)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	unlocked := map[rewarddomain.AchievementType]struct{}{}
	for rows.Next() {
		var achievementType string
		if err := rows.Scan(&achievementType); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		unlocked[rewarddomain.AchievementType(achievementType)] = struct{}{}
	}
	return unlocked, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (rewarddomain.CumulativeStats, error) {
	const query = `
SELECT COUNT(*), COALESCE(SUM(pages_read), 0), COALESCE(SUM(duration_minutes), 0), COALESCE(MAX(duration_minutes), 0)
FROM completed_sessions WHERE counts_in_stats = 1`
	var stats rewarddomain.CumulativeStats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalSessions, &stats.TotalPages, &stats.TotalMinutes, &stats.LongestSessionMins); err != nil {
		return rewarddomain.CumulativeStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	profile, err := s.Profile(ctx)
	if err != nil {
		return rewarddomain.CumulativeStats{}, err
	}
	stats.CurrentStreak = profile.CurrentStreak
	stats.TotalPoints = profile.TotalPoints
	return stats, nil
}

type activeScanner interface {
	Scan(dest ...any) error
}

func scanActive(row activeScanner) (domain.ActiveSession, error) {
	var session domain.ActiveSession
	var startedAt, lastUpdated, origin string
	var pausedAt sql.NullString
	var paused int
	var pausedSecs int64
	if err := row.Scan(&session.ID, &session.BookID, &startedAt, &session.StartPage, &session.CurrentPage, &paused, &pausedAt, &pausedSecs, &lastUpdated, &origin); err != nil {
		return domain.ActiveSession{}, err
	}
	var err error
	if session.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("parse started_at: %w", err)
	}
	if session.LastUpdated, err = time.Parse(timeLayout, lastUpdated); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("parse last_updated: %w", err)
	}
	if session.PausedAt, err = parseNullableTime(pausedAt); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("parse paused_at: %w", err)
	}
	session.Paused = paused != 0
	session.PausedTotal = time.Duration(pausedSecs) * time.Second
	session.Origin = domain.Surface(origin)
	return session, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(timeLayout)
}

func parseNullableTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, v.String)
}
