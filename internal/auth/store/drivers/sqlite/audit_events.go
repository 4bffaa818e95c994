package sqlite

import (
	"context"

	"github.com/veridianhq/idverify/internal/auth/domain"
)

type auditEventsRepo struct {
	q dbtx
}

func (r *auditEventsRepo) AppendAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, user_id, action, resource_type, resource_id,
			details, ip_address, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Action, ev.ResourceType, ev.ResourceID,
		ev.Details, ev.IPAddress, ev.Status, ev.CreatedAt,
	)
	return err
}

func (r *auditEventsRepo) ListAuditEventsForUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id,
			details, ip_address, status, created_at
		FROM audit_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.Action, &ev.ResourceType, &ev.ResourceID,
			&ev.Details, &ev.IPAddress, &ev.Status, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
