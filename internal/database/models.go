package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Content struct {
	Id         int
	ExternalId string
	Title      string
	Author     string
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Highlight struct {
	Id          int
	ContentId   int
	UserId      int
	StartOffset int
	EndOffset   int
	Quote       string
	CreatedAt   time.Time
}

type ChatMessage struct {
	Id        int
	MessageId string
	ContentId int
	UserId    int
	Body      string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateContentParams struct {
	ExternalId string
	Title      string
	Author     string
	Body       string
}

type CreateHighlightParams struct {
	ContentId   int
	UserId      int
	StartOffset int
	EndOffset   int
	Quote       string
}

type AppendChatMessageParams struct {
	MessageId string
	ContentId int
	UserId    int
	Body      string
	CreatedAt time.Time
}
