package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
)

type MailingRepositoryInterface interface {
	Create(ctx context.Context, m *model.Mailing) error
	GetByID(ctx context.Context, id int) (*model.Mailing, error)
	ListByOwner(ctx context.Context, ownerID int) ([]*model.Mailing, error)
	Delete(ctx context.Context, id int) error

	// Dispatch
	FindForDispatch(ctx context.Context, periodicity model.Periodicity) ([]*model.Mailing, error)
	ListRecipients(ctx context.Context, mailingID int) ([]model.Client, error)
	UpdateStatus(ctx context.Context, id int, status model.Status) error

	// Activation
	SetActiveByOwner(ctx context.Context, ownerID int, active bool) (int64, error)
	SetActiveAndStatus(ctx context.Context, id int, active bool, status model.Status) error

	CountDistinctRecipients(ctx context.Context, ownerID int) (int, error)
}

type MailingRepository struct {
	DB *sql.DB
}

const mailingColumns = `
	m.id, m.start_time, m.end_time, m.periodicity, m.status, m.is_active,
	m.owner_id, m.message_id, m.created_at, m.updated_at,
	COALESCE(ARRAY(SELECT mc.client_id FROM mailing_clients mc WHERE mc.mailing_id = m.id ORDER BY mc.client_id), '{}')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMailing(row rowScanner) (*model.Mailing, error) {
	var (
		m         model.Mailing
		messageID sql.NullInt64
		updatedAt sql.NullTime
		clientIDs []int64
	)
	err := row.Scan(
		&m.ID, &m.StartTime, &m.EndTime, &m.Periodicity, &m.Status, &m.IsActive,
		&m.OwnerID, &messageID, &m.CreatedAt, &updatedAt, pq.Array(&clientIDs),
	)
	if err != nil {
		return nil, err
	}
	if messageID.Valid {
		id := int(messageID.Int64)
		m.MessageID = &id
	}
	if updatedAt.Valid {
		m.UpdatedAt = &updatedAt.Time
	}
	m.ClientIDs = make([]int, len(clientIDs))
	for i, id := range clientIDs {
		m.ClientIDs[i] = int(id)
	}
	return &m, nil
}

// Create stores the mailing and its recipient set in one transaction.
func (r *MailingRepository) Create(ctx context.Context, m *model.Mailing) error {
	if m.Status == "" {
		m.Status = model.StatusCreated
	}
	if err := m.Validate(); err != nil {
		return err
	}
	m.CreatedAt = time.Now()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO mailings (start_time, end_time, periodicity, status, is_active, owner_id, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		m.StartTime, m.EndTime, m.Periodicity, m.Status, m.IsActive, m.OwnerID, m.MessageID, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert mailing: %w", err)
	}

	if len(m.ClientIDs) > 0 {
		ids := make([]int64, len(m.ClientIDs))
		for i, id := range m.ClientIDs {
			ids[i] = int64(id)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mailing_clients (mailing_id, client_id)
			SELECT $1, unnest($2::int[])
			ON CONFLICT DO NOTHING
		`, m.ID, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("insert mailing clients: %w", err)
		}
	}

	return tx.Commit()
}

func (r *MailingRepository) GetByID(ctx context.Context, id int) (*model.Mailing, error) {
	query := `SELECT ` + mailingColumns + ` FROM mailings m WHERE m.id = $1`
	m, err := scanMailing(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMailingNotFound(id)
		}
		return nil, err
	}
	return m, nil
}

func (r *MailingRepository) ListByOwner(ctx context.Context, ownerID int) ([]*model.Mailing, error) {
	query := `SELECT ` + mailingColumns + ` FROM mailings m WHERE m.owner_id = $1 ORDER BY m.id DESC`
	return r.query(ctx, query, ownerID)
}

// FindForDispatch selects the mailings a trigger of the given cadence acts on.
func (r *MailingRepository) FindForDispatch(ctx context.Context, periodicity model.Periodicity) ([]*model.Mailing, error) {
	query := `SELECT ` + mailingColumns + ` FROM mailings m
		WHERE m.periodicity = $1 AND m.status = $2 AND m.is_active = TRUE
		ORDER BY m.id`
	return r.query(ctx, query, periodicity, model.StatusStarted)
}

func (r *MailingRepository) query(ctx context.Context, query string, args ...any) ([]*model.Mailing, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mailings := []*model.Mailing{}
	for rows.Next() {
		m, err := scanMailing(rows)
		if err != nil {
			return nil, err
		}
		mailings = append(mailings, m)
	}
	return mailings, rows.Err()
}

func (r *MailingRepository) ListRecipients(ctx context.Context, mailingID int) ([]model.Client, error) {
	query := `
		SELECT c.id, c.full_name, c.email, c.comment, c.owner_id
		FROM clients c
		JOIN mailing_clients mc ON mc.client_id = c.id
		WHERE mc.mailing_id = $1
		ORDER BY c.id
	`
	rows, err := r.DB.QueryContext(ctx, query, mailingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []model.Client{}
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.FullName, &c.Email, &c.Comment, &c.OwnerID); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateStatus writes only the status column so a concurrent activation
// flip of is_active is never overwritten.
func (r *MailingRepository) UpdateStatus(ctx context.Context, id int, status model.Status) error {
	query := `UPDATE mailings SET status=$1, updated_at=$2 WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.NewMailingNotFound(id))
}

// SetActiveByOwner writes only is_active, for every mailing of the owner.
func (r *MailingRepository) SetActiveByOwner(ctx context.Context, ownerID int, active bool) (int64, error) {
	query := `UPDATE mailings SET is_active=$1, updated_at=$2 WHERE owner_id=$3`
	res, err := r.DB.ExecContext(ctx, query, active, time.Now(), ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MailingRepository) SetActiveAndStatus(ctx context.Context, id int, active bool, status model.Status) error {
	query := `UPDATE mailings SET is_active=$1, status=$2, updated_at=$3 WHERE id=$4`
	res, err := r.DB.ExecContext(ctx, query, active, status, time.Now(), id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.NewMailingNotFound(id))
}

func (r *MailingRepository) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM mailings WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.NewMailingNotFound(id))
}

// CountDistinctRecipients counts unique recipient emails over all mailings of the owner.
func (r *MailingRepository) CountDistinctRecipients(ctx context.Context, ownerID int) (int, error) {
	query := `
		SELECT COUNT(DISTINCT c.email)
		FROM mailings m
		JOIN mailing_clients mc ON mc.mailing_id = m.id
		JOIN clients c ON c.id = mc.client_id
		WHERE m.owner_id = $1
	`
	var n int
	err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(&n)
	return n, err
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ MailingRepositoryInterface = (*MailingRepository)(nil)
