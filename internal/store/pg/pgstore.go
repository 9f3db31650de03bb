package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tempora.dev/internal/auth"
	"tempora.dev/internal/ids"
)

// Store implements auth.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects with pool defaults tuned for a small API instance.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) auth.UserStore             { return &userStore{db: s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore             { return &roleStore{db: s.db} }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return &permissionStore{db: s.db} }
func (s *Store) Audit(context.Context) auth.AuditStore            { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, username, email, password_hash, role_id, enabled, locked,
	failed_login_count, expires_at, force_password_change, last_password_change_at,
	created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, email, password_hash, role_id, enabled, locked,
			failed_login_count, expires_at, force_password_change, last_password_change_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, u.ID, u.Username, nullString(u.Email), u.PasswordHash, u.RoleID, u.Enabled, u.Locked,
		u.FailedLoginCount, u.ExpiresAt, u.ForcePasswordChange, u.LastPasswordChangeAt)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

func (s *userStore) UpdatePassword(ctx context.Context, username, passwordHash string, changedAt time.Time, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash=$2, last_password_change_at=$3, expires_at=$4,
			force_password_change=false, updated_at=now()
		where username=$1
	`, username, passwordHash, changedAt, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set enabled=$2, updated_at=now() where username=$1`, username, enabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) Unlock(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set locked=false, failed_login_count=0, updated_at=now() where username=$1`, username)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// IncrementFailedLogins is a single atomic UPDATE; the row lock serializes
// concurrent attempts on the same account, so the counter cannot skip the
// threshold under any interleaving.
func (s *userStore) IncrementFailedLogins(ctx context.Context, username string, threshold int) (int, bool, error) {
	var (
		count  int
		locked bool
	)
	err := s.db.QueryRowContext(ctx, `
		update users
		set failed_login_count = failed_login_count + 1,
			locked = locked or failed_login_count + 1 >= $2,
			updated_at = now()
		where username = $1
		returning failed_login_count, locked
	`, username, threshold).Scan(&count, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, auth.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return count, locked, nil
}

func (s *userStore) ResetFailedLogins(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set failed_login_count=0, updated_at=now() where username=$1`, username)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) ListWithExpiry(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where expires_at is not null order by username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u     auth.User
		email sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.RoleID, &u.Enabled, &u.Locked,
		&u.FailedLoginCount, &u.ExpiresAt, &u.ForcePasswordChange, &u.LastPasswordChangeAt,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name) values($1,$2)`, role.ID, role.Name)
	return err
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where id=$1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where name=$1`, name))
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, created_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func scanRole(row rowScanner) (*auth.Role, error) {
	var role auth.Role
	err := row.Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions(id, resource, action, description)
			values($1,$2,$3,$4)
			on conflict (resource, action) do nothing
		`, id, p.Resource, p.Action, p.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, resource, action, description, created_at from permissions order by resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_id)
			select $1, id from permissions where resource || ':' || action = $2
		`, roleID, key)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.resource, p.action, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	var out []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Audit store --------------------------------------------------------------

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *auth.LoginAudit) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into login_audit(id, username, at, outcome, source)
		values($1,$2,$3,$4,$5)
	`, entry.ID, entry.Username, entry.At, string(entry.Outcome), entry.Source)
	return err
}

func (s *auditStore) List(ctx context.Context, username string, page, pageSize int) ([]auth.LoginAudit, error) {
	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
		select id, username, at, outcome, source
		from login_audit
		where $1 = '' or username = $1
		order by at desc
		limit $2 offset $3
	`, username, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.LoginAudit
	for rows.Next() {
		var (
			entry   auth.LoginAudit
			outcome string
		)
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.At, &outcome, &entry.Source); err != nil {
			return nil, err
		}
		entry.Outcome = auth.LoginOutcome(outcome)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
