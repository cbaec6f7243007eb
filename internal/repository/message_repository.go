package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
)

type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id int) (*model.Message, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Message, error)
	Update(ctx context.Context, m *model.Message) error
	Delete(ctx context.Context, id int) error
}

type MessageRepository struct {
	DB *sql.DB
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	query := `INSERT INTO messages (title, text, owner_id) VALUES ($1, $2, $3) RETURNING id`
	return r.DB.QueryRowContext(ctx, query, m.Title, m.Text, m.OwnerID).Scan(&m.ID)
}

func (r *MessageRepository) GetByID(ctx context.Context, id int) (*model.Message, error) {
	query := `SELECT id, title, text, owner_id FROM messages WHERE id = $1`
	var m model.Message
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Title, &m.Text, &m.OwnerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, title, text, owner_id FROM messages WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Title, &m.Text, &m.OwnerID); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Update rewrites subject and body. Mailings pointing at the message pick up
// the new text on their next dispatch.
func (r *MessageRepository) Update(ctx context.Context, m *model.Message) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET title = $1, text = $2 WHERE id = $3`, m.Title, m.Text, m.ID)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.ErrMessageNotFound)
}

func (r *MessageRepository) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.ErrMessageNotFound)
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
