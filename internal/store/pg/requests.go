package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civreg.org/internal/auth"
	"civreg.org/internal/requests"
)

const requestColumns = `id, citizen_id, request_type, content, status, province_id, district_id, ward_id, created_at, processed_by, processed_at`

var requestScope = scopeColumns{province: "province_id", district: "district_id", ward: "ward_id"}

func scanRequest(row rowScanner) (*requests.Request, error) {
	var (
		r                        requests.Request
		province, district, ward sql.NullInt64
		processedBy              sql.NullString
		processedAt              sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.CitizenID, &r.Type, &r.Content, &r.Status,
		&province, &district, &ward, &r.CreatedAt, &processedBy, &processedAt); err != nil {
		return nil, err
	}
	r.ProvinceID, r.DistrictID, r.WardID = intPtr(province), intPtr(district), intPtr(ward)
	r.ProcessedBy = processedBy.String
	if processedAt.Valid {
		at := processedAt.Time
		r.ProcessedAt = &at
	}
	return &r, nil
}

// whereRequests renders c as a predicate over citizen_requests.
func whereRequests(c requests.Criteria) (string, []any) {
	where, args := whereScope(c.Scope, requestScope, nil)
	if c.CitizenID != "" {
		args = append(args, c.CitizenID)
		where += fmt.Sprintf(" and citizen_id = $%d", len(args))
	}
	if c.Status != nil {
		args = append(args, int(*c.Status))
		where += fmt.Sprintf(" and status = $%d", len(args))
	}
	return where, args
}

func (s *Store) FindRequest(ctx context.Context, id string) (*requests.Request, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, `select `+requestColumns+` from citizen_requests where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return r, err
}

func (s *Store) CountRequests(ctx context.Context, c requests.Criteria) (int, error) {
	if c.Scope.Empty() {
		return 0, nil
	}
	where, args := whereRequests(c)
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from citizen_requests where `+where, args...).Scan(&n)
	return n, err
}

func (s *Store) ListRequests(ctx context.Context, c requests.Criteria, page auth.Page) ([]*requests.Request, error) {
	if c.Scope.Empty() {
		return []*requests.Request{}, nil
	}
	where, args := whereRequests(c)
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`select %s from citizen_requests where %s order by id limit $%d offset $%d`,
		requestColumns, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*requests.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) InsertRequest(ctx context.Context, r *requests.Request) error {
	_, err := s.db.ExecContext(ctx, `
		insert into citizen_requests (id, citizen_id, request_type, content, status, province_id, district_id, ward_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.CitizenID, r.Type, r.Content, int(r.Status),
		nullInt(r.ProvinceID), nullInt(r.DistrictID), nullInt(r.WardID), r.CreatedAt)
	return mapWriteError(err)
}

// DecideRequest only touches rows that are still pending, so two reviewers
// cannot both decide the same request.
func (s *Store) DecideRequest(ctx context.Context, r *requests.Request) error {
	res, err := s.db.ExecContext(ctx, `
		update citizen_requests
		set status = $2, processed_by = $3, processed_at = $4
		where id = $1 and status = $5
	`, r.ID, int(r.Status), r.ProcessedBy, r.ProcessedAt, int(requests.StatusPending))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff > 0 {
		return nil
	}
	if _, err := s.FindRequest(ctx, r.ID); err != nil {
		return err
	}
	return auth.ErrConflict
}
