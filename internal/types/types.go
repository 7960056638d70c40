package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Content struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Highlight struct {
	Id          int       `json:"id"`
	ContentId   string    `json:"content_id"`
	UserId      int       `json:"user_id"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Quote       string    `json:"quote"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ChatMessage is a single entry in a discussion transcript. Id is generated
// by the sender and is the deduplication key for rebroadcast copies.
type ChatMessage struct {
	Id        string    `json:"id"`
	ContentId string    `json:"content_id"`
	SenderId  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
