package store

import (
	"database/sql"
	"fmt"
	"time"

	"sitebeat/models"
)

func (s *Store) CreateUser(user models.User) error {
	_, err := s.db.Exec(`INSERT INTO users(user_id, email, name, password_hash, created_at)
		VALUES(?,?,?,?,?)`,
		user.UserID, user.Email, user.Name, user.PasswordHash, user.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT user_id, email, name, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (s *Store) UserByID(userID string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT user_id, email, name, password_hash, created_at FROM users WHERE user_id = ?`, userID))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var createdAt int64
	err := row.Scan(&u.UserID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}
