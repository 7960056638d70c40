package database

import (
	"time"
)

func (db *PgRashomonRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email, created_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgRashomonRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgRashomonRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgRashomonRepository) CreateContent(params CreateContentParams) (Content, error) {
	row := db.conn.QueryRow(
		"INSERT INTO contents (external_id, title, author, body, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, external_id, title, author, body, created_at",
		params.ExternalId,
		params.Title,
		params.Author,
		params.Body,
		time.Now().UTC(),
	)

	var c Content
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.Title,
		&c.Author,
		&c.Body,
		&c.CreatedAt,
	)

	return c, err
}

func (db *PgRashomonRepository) ListContents() ([]Content, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, title, author, created_at FROM contents ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(
			&c.Id,
			&c.ExternalId,
			&c.Title,
			&c.Author,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}

	return contents, rows.Err()
}

func (db *PgRashomonRepository) GetContentByExternalId(externalId string) (Content, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, title, author, body, created_at FROM contents "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var c Content
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.Title,
		&c.Author,
		&c.Body,
		&c.CreatedAt,
	)

	return c, err
}

func (db *PgRashomonRepository) CreateHighlight(params CreateHighlightParams) (Highlight, error) {
	row := db.conn.QueryRow(
		"INSERT INTO highlights (content_id, account_id, start_offset, end_offset, quote, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, content_id, account_id, start_offset, end_offset, quote, created_at",
		params.ContentId,
		params.UserId,
		params.StartOffset,
		params.EndOffset,
		params.Quote,
		time.Now().UTC(),
	)

	var h Highlight
	err := row.Scan(
		&h.Id,
		&h.ContentId,
		&h.UserId,
		&h.StartOffset,
		&h.EndOffset,
		&h.Quote,
		&h.CreatedAt,
	)

	return h, err
}

func (db *PgRashomonRepository) ListHighlightsByContent(contentId int) ([]Highlight, error) {
	rows, err := db.conn.Query(
		"SELECT id, content_id, account_id, start_offset, end_offset, quote, created_at "+
			"FROM highlights WHERE content_id = $1 ORDER BY start_offset ASC",
		contentId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var highlights []Highlight
	for rows.Next() {
		var h Highlight
		if err := rows.Scan(
			&h.Id,
			&h.ContentId,
			&h.UserId,
			&h.StartOffset,
			&h.EndOffset,
			&h.Quote,
			&h.CreatedAt,
		); err != nil {
			return nil, err
		}
		highlights = append(highlights, h)
	}

	return highlights, rows.Err()
}

func (db *PgRashomonRepository) AppendChatMessage(params AppendChatMessageParams) error {
	// message_id carries the sender-generated id; the unique constraint on
	// it makes redelivered persistence calls harmless
	_, err := db.conn.Exec(
		"INSERT INTO chat_messages (message_id, content_id, account_id, body, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) ON CONFLICT (message_id) DO NOTHING",
		params.MessageId,
		params.ContentId,
		params.UserId,
		params.Body,
		params.CreatedAt,
	)

	return err
}

func (db *PgRashomonRepository) GetChatMessages(contentId, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(
		"SELECT id, message_id, content_id, account_id, body, created_at FROM chat_messages "+
			"WHERE content_id = $1 ORDER BY created_at ASC LIMIT $2",
		contentId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(
			&m.Id,
			&m.MessageId,
			&m.ContentId,
			&m.UserId,
			&m.Body,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
