package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

// SessionRepository implements arena.SessionStore for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

var _ arena.SessionStore = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Append inserts one historical session. Replayed IDs are ignored.
func (r *SessionRepository) Append(ctx context.Context, rec *arena.SessionRecord) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO arena_sessions (
			id, user_id, level, score, correct_answers, total_questions,
			duration_seconds, xp_earned, started_at, ended_at, client_ip, is_suspicious
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		string(rec.Level),
		int64(rec.Score),
		int32(rec.CorrectAnswers),
		int32(rec.TotalQuestions),
		rec.DurationSeconds,
		int64(rec.XPEarned),
		rec.StartedAt,
		rec.EndedAt,
		rec.ClientIP,
		rec.IsSuspicious,
	)
	if err != nil {
		return fmt.Errorf("failed to append session: %w", err)
	}
	return nil
}
