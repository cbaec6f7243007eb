// internal/model/delivery_log.go
package model

import "time"

const ServerResponseOK = "OK"

// DeliveryLog is one delivery attempt to one recipient. Rows are append-only.
type DeliveryLog struct {
	ID             int       `db:"id" json:"id"`
	Time           time.Time `db:"time" json:"time"`
	Status         bool      `db:"status" json:"status"`
	ServerResponse string    `db:"server_response" json:"server_response"`
	Recipient      string    `db:"recipient" json:"recipient"`
	MailingID      int       `db:"mailing_id" json:"mailing_id"`
	OwnerID        int       `db:"owner_id" json:"owner_id"`
}

type LogStats struct {
	All     int `json:"all"`
	Success int `json:"success"`
	Error   int `json:"error"`
}
