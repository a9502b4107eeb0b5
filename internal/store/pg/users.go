package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civreg.org/internal/auth"
)

const userColumns = `id, username, password_hash, full_name, role, province_id, district_id, ward_id, is_active, created_at, updated_at`

var userScope = scopeColumns{province: "province_id", district: "district_id", ward: "ward_id", role: "role"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                  auth.User
		role               string
		province, district sql.NullInt64
		ward               sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &role,
		&province, &district, &ward, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = r
	u.ProvinceID, u.DistrictID, u.WardID = intPtr(province), intPtr(district), intPtr(ward)
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(username) = lower($1)`, strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

// CountUsers counts active users matching filter.
func (s *Store) CountUsers(ctx context.Context, filter auth.ScopeFilter) (int, error) {
	if filter.Empty() {
		return 0, nil
	}
	where, args := whereScope(filter, userScope, nil)
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users where is_active and `+where, args...).Scan(&n)
	return n, err
}

// ListUsers returns a page of active users matching filter, oldest first.
func (s *Store) ListUsers(ctx context.Context, filter auth.ScopeFilter, page auth.Page) ([]*auth.User, error) {
	if filter.Empty() {
		return []*auth.User{}, nil
	}
	where, args := whereScope(filter, userScope, nil)
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`select %s from users where is_active and %s order by id limit $%d offset $%d`,
		userColumns, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) InsertUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (`+userColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Username, u.PasswordHash, u.FullName, u.Role.String(),
		nullInt(u.ProvinceID), nullInt(u.DistrictID), nullInt(u.WardID),
		u.IsActive, u.CreatedAt, u.UpdatedAt)
	return mapWriteError(err)
}

func (s *Store) ReplaceUser(ctx context.Context, u *auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set username = $2, password_hash = $3, full_name = $4, role = $5,
		    province_id = $6, district_id = $7, ward_id = $8, is_active = $9, updated_at = $10
		where id = $1
	`, u.ID, u.Username, u.PasswordHash, u.FullName, u.Role.String(),
		nullInt(u.ProvinceID), nullInt(u.DistrictID), nullInt(u.WardID),
		u.IsActive, u.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
