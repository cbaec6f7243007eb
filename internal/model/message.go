// internal/model/message.go
package model

// Message is a reusable subject/body template. Mailings reference it, so
// editing a message changes what in-flight mailings send.
type Message struct {
	ID      int    `db:"id" json:"id"`
	Title   string `db:"title" json:"title"`
	Text    string `db:"text" json:"text"`
	OwnerID int    `db:"owner_id" json:"owner_id"`
}
