package pg

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"civreg.org/internal/auth"
	"civreg.org/internal/registry"
	"civreg.org/internal/requests"
)

var (
	userCols      = []string{"id", "username", "password_hash", "full_name", "role", "province_id", "district_id", "ward_id", "is_active", "created_at", "updated_at"}
	householdCols = []string{"id", "household_code", "head_name", "address", "province_id", "district_id", "ward_id", "hamlet_id", "created_by", "created_at", "updated_at"}
	requestCols   = []string{"id", "citizen_id", "request_type", "content", "status", "province_id", "district_id", "ward_id", "created_at", "processed_by", "processed_at"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestFindUserByID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select id, username, .* from users where id = \\$1").
		WithArgs("01H").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("01H", "da10", "hash", "District Admin", "DistrictAdmin", 1, 10, nil, true, now, now))

	u, err := s.FindUserByID(context.Background(), "01H")
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if u.Role != auth.RoleDistrictAdmin {
		t.Fatalf("unexpected role %v", u.Role)
	}
	if u.ProvinceID == nil || *u.ProvinceID != 1 || u.DistrictID == nil || *u.DistrictID != 10 || u.WardID != nil {
		t.Fatalf("unexpected units %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("from users where lower\\(username\\) = lower\\(\\$1\\)").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.FindUserByUsername(context.Background(), " ghost "); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindUserRejectsUnknownRole(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("from users where id").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("x", "x", "h", "", "Emperor", nil, nil, nil, true, now, now))
	if _, err := s.FindUserByID(context.Background(), "x"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestCountUsersBuildsScopedPredicate(t *testing.T) {
	s, mock := newMockStore(t)
	filter := auth.ScopeFilter{ProvinceID: auth.IntPtr(3), Roles: []auth.Role{auth.RoleDistrictAdmin}}
	mock.ExpectQuery("select count\\(\\*\\) from users where is_active and province_id = \\$1 and role in \\(\\$2\\)").
		WithArgs(3, "DistrictAdmin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountUsers(context.Background(), filter)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmptyFilterSkipsDatabase(t *testing.T) {
	s, mock := newMockStore(t)
	n, err := s.CountUsers(context.Background(), auth.NoResults())
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
	list, err := s.ListHouseholds(context.Background(), auth.NoResults(), auth.NewPage(1, 10))
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestListUsersPaginates(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("from users where is_active and true order by id limit \\$1 offset \\$2").
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("03", "c", "h", "", "WardAdmin", 1, 10, 100, true, now, now).
			AddRow("04", "d", "h", "", "Citizen", 1, 10, 100, true, now, now))

	list, err := s.ListUsers(context.Background(), auth.ScopeFilter{}, auth.NewPage(2, 2))
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(list) != 2 || list[1].Role != auth.RoleCitizen {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestInsertUserConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_username_lower_key"})

	err := s.InsertUser(context.Background(), &auth.User{ID: "1", Username: "dup", Role: auth.RoleCitizen})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReplaceUserMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("update users").WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.ReplaceUser(context.Background(), &auth.User{ID: "gone", Role: auth.RoleCitizen})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceUserWritesNullUnits(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec("update users").
		WithArgs("1", "u", "h", "Full", "ProvinceAdmin", 7, nil, nil, true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	u := &auth.User{ID: "1", Username: "u", PasswordHash: "h", FullName: "Full", Role: auth.RoleProvinceAdmin, ProvinceID: auth.IntPtr(7), IsActive: true, UpdatedAt: now}
	if err := s.ReplaceUser(context.Background(), u); err != nil {
		t.Fatalf("ReplaceUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHouseholdHamletFilter(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select count\\(\\*\\) from households where ward_id = \\$1 and hamlet_id = \\$2").
		WithArgs(100, 1000).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := s.CountHouseholds(context.Background(), auth.ScopeFilter{WardID: auth.IntPtr(100), HamletID: auth.IntPtr(1000)})
	if err != nil || n != 2 {
		t.Fatalf("CountHouseholds: %d, %v", n, err)
	}
}

func TestUsersHaveNoHamlet(t *testing.T) {
	where, args := whereScope(auth.ScopeFilter{HamletID: auth.IntPtr(1)}, userScope, nil)
	if where != "false" || len(args) != 0 {
		t.Fatalf("unexpected predicate %q %v", where, args)
	}
}

func TestInsertHousehold(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	h := &registry.Household{
		ID: "01", Code: "HH-1", HeadName: "Head", ProvinceID: auth.IntPtr(1),
		DistrictID: auth.IntPtr(10), WardID: auth.IntPtr(100), CreatedBy: "wa", CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec("insert into households").
		WithArgs("01", "HH-1", "Head", "", 1, 10, 100, nil, "wa", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := s.InsertHousehold(context.Background(), h); err != nil {
		t.Fatalf("InsertHousehold: %v", err)
	}

	mock.ExpectExec("insert into households").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := s.InsertHousehold(context.Background(), h); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindHouseholdByCode(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("from households where household_code = \\$1").
		WithArgs("HH-1").
		WillReturnRows(sqlmock.NewRows(householdCols).AddRow("01", "HH-1", "Head", "Street 1", 1, 10, 100, nil, "wa", now, now))
	h, err := s.FindHouseholdByCode(context.Background(), "HH-1")
	if err != nil {
		t.Fatalf("FindHouseholdByCode: %v", err)
	}
	if h.HamletID != nil || *h.WardID != 100 {
		t.Fatalf("unexpected household %+v", h)
	}
}

func TestListHouseholdsSaturatesOffset(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("from households where true order by id limit \\$1 offset \\$2").
		WithArgs(20, math.MaxInt).
		WillReturnRows(sqlmock.NewRows(householdCols))

	list, err := s.ListHouseholds(context.Background(), auth.ScopeFilter{}, auth.Page{Number: math.MaxInt, Size: 20})
	if err != nil {
		t.Fatalf("ListHouseholds: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty page, got %v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceHousehold(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	h := &registry.Household{ID: "01", Code: "HH-2", HeadName: "Head", ProvinceID: auth.IntPtr(1), DistrictID: auth.IntPtr(10), WardID: auth.IntPtr(100), UpdatedAt: now}
	mock.ExpectExec("update households").
		WithArgs("01", "HH-2", "Head", "", 1, 10, 100, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.ReplaceHousehold(context.Background(), h); err != nil {
		t.Fatalf("ReplaceHousehold: %v", err)
	}

	mock.ExpectExec("update households").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := s.ReplaceHousehold(context.Background(), h); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec("update households").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.ReplaceHousehold(context.Background(), h); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRequestsByCitizenAndStatus(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	pending := requests.StatusPending
	mock.ExpectQuery("select count\\(\\*\\) from citizen_requests where ward_id = \\$1 and citizen_id = \\$2 and status = \\$3").
		WithArgs(100, "c1", 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("from citizen_requests where ward_id = \\$1 and citizen_id = \\$2 and status = \\$3 order by id limit \\$4 offset \\$5").
		WithArgs(100, "c1", 0, 10, 0).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow("r1", "c1", 3, "need a copy", 0, 1, 10, 100, now, nil, nil))

	c := requests.Criteria{Scope: auth.ScopeFilter{WardID: auth.IntPtr(100)}, CitizenID: "c1", Status: &pending}
	n, err := s.CountRequests(context.Background(), c)
	if err != nil || n != 1 {
		t.Fatalf("CountRequests: %d, %v", n, err)
	}
	list, err := s.ListRequests(context.Background(), c, auth.NewPage(1, 10))
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(list) != 1 || list[0].Type != 3 || list[0].Status != requests.StatusPending || list[0].ProcessedAt != nil {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecideRequestOnlyWhilePending(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	r := &requests.Request{ID: "r1", Status: requests.StatusApproved, ProcessedBy: "wa", ProcessedAt: &now}

	mock.ExpectExec("update citizen_requests .* where id = \\$1 and status = \\$5").
		WithArgs("r1", 1, "wa", now, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.DecideRequest(context.Background(), r); err != nil {
		t.Fatalf("DecideRequest: %v", err)
	}

	mock.ExpectExec("update citizen_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from citizen_requests where id = \\$1").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow("r1", "c1", 0, "", 2, 1, 10, 100, now, "da", now))
	if err := s.DecideRequest(context.Background(), r); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec("update citizen_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from citizen_requests where id = \\$1").WillReturnError(sql.ErrNoRows)
	if err := s.DecideRequest(context.Background(), r); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
