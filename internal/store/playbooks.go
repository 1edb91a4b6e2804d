package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"remsim/internal/playbook"
)

// CreatePlaybook inserts one playbook. A name collision within the tenant
// returns playbook.ErrDuplicateName.
func (s *Store) CreatePlaybook(ctx context.Context, pb *playbook.Playbook) error {
	config, err := json.Marshal(pb.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	now := time.Now().UTC()
	if pb.CreatedAt.IsZero() {
		pb.CreatedAt = now
	}
	pb.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playbooks (id, tenant_id, name, description, category, is_active, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pb.ID, pb.TenantID, pb.Name, pb.Description, pb.Category,
		boolToInt(pb.IsActive), string(config), toMillis(pb.CreatedAt), toMillis(pb.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", playbook.ErrDuplicateName, pb.Name)
		}
		return fmt.Errorf("insert playbook: %w", err)
	}
	return nil
}

// GetPlaybook returns one playbook scoped to the tenant. A missing row or a
// tenant mismatch both come back as playbook.ErrNotFound.
func (s *Store) GetPlaybook(ctx context.Context, tenantID, id string) (*playbook.Playbook, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, category, is_active, config, created_at, updated_at
		FROM playbooks
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id)

	pb, err := scanPlaybook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, playbook.ErrNotFound
		}
		return nil, fmt.Errorf("get playbook: %w", err)
	}
	return pb, nil
}

// ListPlaybooks returns all of a tenant's playbooks, newest first.
func (s *Store) ListPlaybooks(ctx context.Context, tenantID string) ([]*playbook.Playbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, description, category, is_active, config, created_at, updated_at
		FROM playbooks
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	defer rows.Close()

	playbooks := make([]*playbook.Playbook, 0)
	for rows.Next() {
		pb, err := scanPlaybook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playbook: %w", err)
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, rows.Err()
}

// UpdatePlaybook replaces the mutable fields of an existing playbook.
func (s *Store) UpdatePlaybook(ctx context.Context, pb *playbook.Playbook) error {
	config, err := json.Marshal(pb.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	pb.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE playbooks
		SET name = ?, description = ?, category = ?, is_active = ?, config = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		pb.Name, pb.Description, pb.Category, boolToInt(pb.IsActive),
		string(config), toMillis(pb.UpdatedAt), pb.TenantID, pb.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", playbook.ErrDuplicateName, pb.Name)
		}
		return fmt.Errorf("update playbook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update playbook: %w", err)
	}
	if affected == 0 {
		return playbook.ErrNotFound
	}
	return nil
}

// DeletePlaybook removes one playbook scoped to the tenant.
func (s *Store) DeletePlaybook(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM playbooks WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete playbook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete playbook: %w", err)
	}
	if affected == 0 {
		return playbook.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaybook(row rowScanner) (*playbook.Playbook, error) {
	var (
		pb        playbook.Playbook
		isActive  int
		config    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&pb.ID, &pb.TenantID, &pb.Name, &pb.Description,
		&pb.Category, &isActive, &config, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(config), &pb.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	pb.IsActive = isActive != 0
	pb.CreatedAt = fromMillis(createdAt)
	pb.UpdatedAt = fromMillis(updatedAt)
	return &pb, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
