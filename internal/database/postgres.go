package database

import (
	"database/sql"
)

type PgRashomonRepository struct {
	conn *sql.DB
}

func NewPgRashomonRepository(dsn string) (*PgRashomonRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgRashomonRepository{conn: db}, nil
}

func (db *PgRashomonRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRashomonRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
