package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/mailer-backend/internal/model"
)

type DeliveryLogRepositoryInterface interface {
	Append(ctx context.Context, l *model.DeliveryLog) error
	ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]model.DeliveryLog, error)
	Stats(ctx context.Context, ownerID int) (*model.LogStats, error)
}

// DeliveryLogRepository only ever inserts and reads; rows are never updated.
type DeliveryLogRepository struct {
	DB *sql.DB
}

func (r *DeliveryLogRepository) Append(ctx context.Context, l *model.DeliveryLog) error {
	query := `
		INSERT INTO delivery_logs (time, status, server_response, recipient, mailing_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		l.Time, l.Status, l.ServerResponse, l.Recipient, l.MailingID, l.OwnerID,
	).Scan(&l.ID)
}

func (r *DeliveryLogRepository) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]model.DeliveryLog, error) {
	query := `
		SELECT id, time, status, server_response, recipient, mailing_id, owner_id
		FROM delivery_logs
		WHERE owner_id = $1
		ORDER BY time DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.DeliveryLog{}
	for rows.Next() {
		var l model.DeliveryLog
		if err := rows.Scan(&l.ID, &l.Time, &l.Status, &l.ServerResponse, &l.Recipient, &l.MailingID, &l.OwnerID); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *DeliveryLogRepository) Stats(ctx context.Context, ownerID int) (*model.LogStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status),
		       COUNT(*) FILTER (WHERE NOT status)
		FROM delivery_logs
		WHERE owner_id = $1
	`
	var s model.LogStats
	if err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(&s.All, &s.Success, &s.Error); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
