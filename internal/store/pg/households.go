package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civreg.org/internal/auth"
	"civreg.org/internal/registry"
)

const householdColumns = `id, household_code, head_name, address, province_id, district_id, ward_id, hamlet_id, created_by, created_at, updated_at`

var householdScope = scopeColumns{province: "province_id", district: "district_id", ward: "ward_id", hamlet: "hamlet_id"}

func scanHousehold(row rowScanner) (*registry.Household, error) {
	var (
		h                            registry.Household
		province, district, ward, hm sql.NullInt64
	)
	if err := row.Scan(&h.ID, &h.Code, &h.HeadName, &h.Address,
		&province, &district, &ward, &hm, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.ProvinceID, h.DistrictID, h.WardID, h.HamletID = intPtr(province), intPtr(district), intPtr(ward), intPtr(hm)
	return &h, nil
}

func (s *Store) FindHousehold(ctx context.Context, id string) (*registry.Household, error) {
	h, err := scanHousehold(s.db.QueryRowContext(ctx, `select `+householdColumns+` from households where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return h, err
}

func (s *Store) FindHouseholdByCode(ctx context.Context, code string) (*registry.Household, error) {
	h, err := scanHousehold(s.db.QueryRowContext(ctx, `select `+householdColumns+` from households where household_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return h, err
}

func (s *Store) CountHouseholds(ctx context.Context, filter auth.ScopeFilter) (int, error) {
	if filter.Empty() {
		return 0, nil
	}
	where, args := whereScope(filter, householdScope, nil)
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from households where `+where, args...).Scan(&n)
	return n, err
}

func (s *Store) ListHouseholds(ctx context.Context, filter auth.ScopeFilter, page auth.Page) ([]*registry.Household, error) {
	if filter.Empty() {
		return []*registry.Household{}, nil
	}
	where, args := whereScope(filter, householdScope, nil)
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`select %s from households where %s order by id limit $%d offset $%d`,
		householdColumns, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*registry.Household{}
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) InsertHousehold(ctx context.Context, h *registry.Household) error {
	_, err := s.db.ExecContext(ctx, `
		insert into households (`+householdColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, h.ID, h.Code, h.HeadName, h.Address,
		nullInt(h.ProvinceID), nullInt(h.DistrictID), nullInt(h.WardID), nullInt(h.HamletID),
		h.CreatedBy, h.CreatedAt, h.UpdatedAt)
	return mapWriteError(err)
}

func (s *Store) ReplaceHousehold(ctx context.Context, h *registry.Household) error {
	res, err := s.db.ExecContext(ctx, `
		update households
		set household_code = $2, head_name = $3, address = $4,
		    province_id = $5, district_id = $6, ward_id = $7, hamlet_id = $8, updated_at = $9
		where id = $1
	`, h.ID, h.Code, h.HeadName, h.Address,
		nullInt(h.ProvinceID), nullInt(h.DistrictID), nullInt(h.WardID), nullInt(h.HamletID),
		h.UpdatedAt)
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
