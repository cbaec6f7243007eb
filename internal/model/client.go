// internal/model/client.go
package model

type Client struct {
	ID       int    `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
	Comment  string `db:"comment" json:"comment,omitempty"`
	OwnerID  int    `db:"owner_id" json:"owner_id"`
}
