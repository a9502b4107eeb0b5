package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"civreg.org/internal/auth"
	"civreg.org/internal/registry"
	"civreg.org/internal/requests"
)

const pgErrUniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var (
	_ auth.UserStore = (*Store)(nil)
	_ registry.Store = (*Store)(nil)
	_ requests.Store = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	return s.db.PingContext(ctx)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// scopeColumns names the filterable columns of a table. Columns the table
// lacks are left empty.
type scopeColumns struct {
	province, district, ward, hamlet, role string
}

// whereScope renders f as a SQL predicate. Placeholders continue after args.
// A constraint on a column the table lacks matches nothing.
func whereScope(f auth.ScopeFilter, cols scopeColumns, args []any) (string, []any) {
	var conds []string
	add := func(col string, v *int) {
		if v == nil {
			return
		}
		if col == "" {
			conds = append(conds, "false")
			return
		}
		args = append(args, *v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add(cols.province, f.ProvinceID)
	add(cols.district, f.DistrictID)
	add(cols.ward, f.WardID)
	add(cols.hamlet, f.HamletID)
	if f.Roles != nil && cols.role != "" {
		marks := make([]string, 0, len(f.Roles))
		for _, r := range f.Roles {
			args = append(args, r.String())
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf("%s in (%s)", cols.role, strings.Join(marks, ", ")))
	}
	if len(conds) == 0 {
		return "true", args
	}
	return strings.Join(conds, " and "), args
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
