package models

import "time"

// User is a learner known to the chat front-end
type User struct {
	ID                  string    `json:"id" db:"id"`
	ChatID              int64     `json:"chat_id" db:"chat_id"`
	Username            string    `json:"username" db:"username"`
	NotificationEnabled bool      `json:"notification_enabled" db:"notification_enabled"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
