package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists accounts and refresh sessions in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) CreateUser(ctx context.Context, tenantID, name, email, passwordHash string, roles []string) (User, error) {
	var u User
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO users (tenant_id, name, email, password_hash, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, name, email, roles, created_at, updated_at`,
		tenantID, name, email, passwordHash, roles,
	).Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *PGStore) GetUserByEmail(ctx context.Context, tenantID, email string) (User, string, error) {
	var u User
	var hash string
	err := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, roles, created_at, updated_at, password_hash
		FROM users WHERE tenant_id = $1 AND email = $2`,
		tenantID, email,
	).Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Roles, &u.CreatedAt, &u.UpdatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrSessionNotFound
	}
	if err != nil {
		return User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, hash, nil
}

func (s *PGStore) GetUserByID(ctx context.Context, tenantID, userID string) (User, error) {
	var u User
	err := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, roles, created_at, updated_at
		FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, userID,
	).Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrSessionNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *PGStore) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`,
		userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PGStore) GetSession(ctx context.Context, tokenHash string) (Session, error) {
	var sess Session
	err := s.Pool.QueryRow(ctx, `
		SELECT rt.id, rt.user_id, u.tenant_id, rt.token_hash, rt.expires_at
		FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id
		WHERE rt.token_hash = $1 AND rt.revoked_at IS NULL`,
		tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.TenantID, &sess.TokenHash, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PGStore) RotateSession(ctx context.Context, sessionID, tokenHash string, expiresAt time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE refresh_tokens SET token_hash = $1, expires_at = $2
		WHERE id = $3 AND revoked_at IS NULL`,
		tokenHash, expiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PGStore) DeleteSession(ctx context.Context, tokenHash string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
