package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, first_name, last_name, password_hash)
		VALUES (LOWER($1), $2, $3, $4)
		RETURNING id, created_at
	`, strings.TrimSpace(user.Email), user.FirstName, user.LastName, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, password_hash, created_at FROM users WHERE id=$1
	`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, password_hash, created_at FROM users WHERE email=LOWER($1)
	`, strings.TrimSpace(email)))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &user.CreatedAt); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectRow(res)
}

// Groups

func (s *PostgresStore) CreateGroup(ctx context.Context, name string) (Group, error) {
	group := Group{Name: strings.TrimSpace(name)}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groups (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
		RETURNING id
	`, group.Name).Scan(&group.ID)
	if err != nil {
		return Group{}, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

func (s *PostgresStore) GetGroupByName(ctx context.Context, name string) (Group, error) {
	var group Group
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE name=$1`, name).Scan(&group.ID, &group.Name)
	if err != nil {
		return Group{}, err
	}
	return group, nil
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUserGroups(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name
		FROM groups g
		JOIN group_memberships gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var group Group
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// Sheets

const sheetColumns = `id, title, owner, status, group_name, COALESCE(url, ''), sources, date_created, date_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSheet(row rowScanner) (Sheet, error) {
	var sheet Sheet
	var sources []byte
	if err := row.Scan(&sheet.ID, &sheet.Title, &sheet.Owner, &sheet.Status, &sheet.Group, &sheet.URL, &sources, &sheet.DateCreated, &sheet.DateModified); err != nil {
		return Sheet{}, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &sheet.Sources); err != nil {
			return Sheet{}, fmt.Errorf("decode sources for sheet %d: %w", sheet.ID, err)
		}
	}
	if sheet.Sources == nil {
		sheet.Sources = []json.RawMessage{}
	}
	return sheet, nil
}

func (s *PostgresStore) querySheets(ctx context.Context, query string, args ...any) ([]Sheet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sheets: %w", err)
	}
	defer rows.Close()

	sheets := []Sheet{}
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

func (s *PostgresStore) GetSheet(ctx context.Context, sheetID int64) (Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE id=$1`, sheetID))
}

// GetSheetByURL finds the sheet with url that also has status.
func (s *PostgresStore) GetSheetByURL(ctx context.Context, url string, status int) (Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE url=$1 AND status=$2`, url, status))
}

// ListSheetsByStatus returns sheets in any of statuses, most recently modified first.
func (s *PostgresStore) ListSheetsByStatus(ctx context.Context, statuses []int) ([]Sheet, error) {
	return s.querySheets(ctx, `
		SELECT `+sheetColumns+` FROM sheets
		WHERE status = ANY($1)
		ORDER BY date_modified DESC
	`, int32Array(statuses))
}

// ListSheetsByOwner returns the owner's sheets except topics, most recently modified first.
func (s *PostgresStore) ListSheetsByOwner(ctx context.Context, ownerID int64, excludeStatus int) ([]Sheet, error) {
	return s.querySheets(ctx, `
		SELECT `+sheetColumns+` FROM sheets
		WHERE owner=$1 AND status <> $2
		ORDER BY date_modified DESC
	`, ownerID, excludeStatus)
}

// ListTopicSheets returns sheets with status, optionally restricted to group, ordered by title.
func (s *PostgresStore) ListTopicSheets(ctx context.Context, status int, group string) ([]Sheet, error) {
	if group == "" {
		return s.querySheets(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE status=$1 ORDER BY title ASC`, status)
	}
	return s.querySheets(ctx, `
		SELECT `+sheetColumns+` FROM sheets
		WHERE status=$1 AND group_name=$2
		ORDER BY title ASC
	`, status, group)
}

func (s *PostgresStore) ListAllSheets(ctx context.Context) ([]Sheet, error) {
	return s.querySheets(ctx, `SELECT `+sheetColumns+` FROM sheets ORDER BY id`)
}

func (s *PostgresStore) InsertSheet(ctx context.Context, sheet Sheet) (Sheet, error) {
	sources, err := encodeSources(sheet.Sources)
	if err != nil {
		return Sheet{}, err
	}
	return scanSheet(s.db.QueryRowContext(ctx, `
		INSERT INTO sheets (title, owner, status, group_name, url, sources)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+sheetColumns,
		sheet.Title, sheet.Owner, sheet.Status, sheet.Group, sheet.URL, sources))
}

// UpdateSheet overwrites the mutable fields. The owner column is never written,
// and nil Sources leave the stored list untouched.
func (s *PostgresStore) UpdateSheet(ctx context.Context, sheet Sheet) (Sheet, error) {
	var sources any
	if sheet.Sources != nil {
		encoded, err := encodeSources(sheet.Sources)
		if err != nil {
			return Sheet{}, err
		}
		sources = encoded
	}
	return scanSheet(s.db.QueryRowContext(ctx, `
		UPDATE sheets
		SET title=$2, status=$3, group_name=$4, url=NULLIF($5, ''),
			sources=COALESCE($6::jsonb, sources), date_modified=NOW()
		WHERE id=$1
		RETURNING `+sheetColumns,
		sheet.ID, sheet.Title, sheet.Status, sheet.Group, sheet.URL, sources))
}

// AppendSource appends one source object to the sheet's source list in place.
func (s *PostgresStore) AppendSource(ctx context.Context, sheetID int64, source json.RawMessage) (Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx, `
		UPDATE sheets
		SET sources = sources || jsonb_build_array($2::jsonb), date_modified=NOW()
		WHERE id=$1
		RETURNING `+sheetColumns,
		sheetID, string(source)))
}

func encodeSources(sources []json.RawMessage) (string, error) {
	if sources == nil {
		sources = []json.RawMessage{}
	}
	payload, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("encode sources: %w", err)
	}
	return string(payload), nil
}

func int32Array(values []int) []int32 {
	out := make([]int32, len(values))
	for i, value := range values {
		out[i] = int32(value)
	}
	return out
}

// Sessions

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
