package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
)

// ClientRepositoryInterface defines methods used by service
type ClientRepositoryInterface interface {
	Create(ctx context.Context, c *model.Client) error
	GetByID(ctx context.Context, id int) (*model.Client, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Client, error)
	Delete(ctx context.Context, id int) error
}

// ClientRepository is the concrete implementation
type ClientRepository struct {
	DB *sql.DB
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	query := `
		INSERT INTO clients (full_name, email, comment, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, c.FullName, c.Email, c.Comment, c.OwnerID).Scan(&c.ID)
}

// GetByID fetches a client by ID
func (r *ClientRepository) GetByID(ctx context.Context, id int) (*model.Client, error) {
	query := `
		SELECT id, full_name, email, comment, owner_id
		FROM clients
		WHERE id = $1
	`
	var c model.Client
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.FullName, &c.Email, &c.Comment, &c.OwnerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListByOwner fetches all clients of one user
func (r *ClientRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Client, error) {
	query := `
		SELECT id, full_name, email, comment, owner_id
		FROM clients
		WHERE owner_id = $1
		ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
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

func (r *ClientRepository) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.ErrClientNotFound)
}

var _ ClientRepositoryInterface = (*ClientRepository)(nil)
