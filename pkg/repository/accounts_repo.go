package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

const accountColumns = `id, name, email, role, status, city, country,
	failed_login_attempts, locked_until, lockout_version,
	created_at, updated_at, last_active_at`

// AccountsRepository handles account, credential and follow persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a             domain.Account
		city, country sql.NullString
		lockedUntil   sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Role, &a.Status, &city, &country,
		&a.Lockout.Attempts, &lockedUntil, &a.LockoutVersion,
		&a.CreatedAt, &a.UpdatedAt, &a.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	if city.Valid || country.Valid {
		a.Location = &domain.Location{City: city.String, Country: country.String}
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.Lockout.LockedUntil = &t
	}
	return &a, nil
}

func (r *AccountsRepository) getOne(ctx context.Context, where string, arg any) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByEmail retrieves an account by its normalized email.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `email = $1`, strings.ToLower(email))
}

// FindByID retrieves an account by ID.
func (r *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetCredential retrieves the password credential of an account.
func (r *AccountsRepository) GetCredential(ctx context.Context, accountID uuid.UUID) (*domain.Credential, error) {
	query := `SELECT account_id, password_hash, updated_at FROM credentials WHERE account_id = $1`
	c := &domain.Credential{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&c.AccountID, &c.PasswordHash, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts an account and its credential in one transaction.
func (r *AccountsRepository) Create(ctx context.Context, account *domain.Account, cred *domain.Credential) error {
	var city, country sql.NullString
	if account.Location != nil {
		city = sql.NullString{String: account.Location.City, Valid: true}
		country = sql.NullString{String: account.Location.Country, Valid: true}
	}

	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, email, role, status, city, country, created_at, updated_at, last_active_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, account.ID, account.Name, strings.ToLower(account.Email), account.Role, account.Status,
			city, country, account.CreatedAt, account.UpdatedAt, account.LastActiveAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrAccountAlreadyExists
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (account_id, password_hash, updated_at)
			VALUES ($1, $2, $3)
		`, cred.AccountID, cred.PasswordHash, cred.UpdatedAt)
		return err
	})
}

// UpdateLockout writes the lockout state only if lockout_version still
// equals expectedVersion.
func (r *AccountsRepository) UpdateLockout(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.LockoutState) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = $3,
		    locked_until = $4,
		    lockout_version = lockout_version + 1
		WHERE id = $1 AND lockout_version = $2
	`, id, expectedVersion, state.Attempts, nullTime(state.LockedUntil))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	// Distinguish a lost race from a missing account.
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

// UpdatePassword replaces the credential and clears the lockout state.
func (r *AccountsRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET failed_login_attempts = 0,
			    locked_until = NULL,
			    lockout_version = lockout_version + 1,
			    updated_at = $2
			WHERE id = $1
		`, id, at)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(result, domain.ErrAccountNotFound); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (account_id, password_hash, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
		`, id, passwordHash, at)
		return err
	})
}

// UpdateLastActive records the last activity time.
func (r *AccountsRepository) UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET last_active_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, domain.ErrAccountNotFound)
}

// List returns one page of accounts matching q, newest first.
func (r *AccountsRepository) List(ctx context.Context, q domain.AccountQuery) ([]*domain.Account, error) {
	where, args := listFilter(q)
	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`SELECT %s FROM accounts %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		accountColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func listFilter(q domain.AccountQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Role != "" {
		args = append(args, q.Role)
		conds = append(conds, "role = $"+strconv.Itoa(len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(name ILIKE $"+n+" OR email ILIKE $"+n+")")
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Stats counts accounts by status and role.
func (r *AccountsRepository) Stats(ctx context.Context) (*domain.AccountStats, error) {
	stats := &domain.AccountStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE role = 'admin')
		FROM accounts
	`).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.AdminUsers)
	if err != nil {
		return nil, err
	}
	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers
	return stats, nil
}

// UpdateProfile applies the non-nil fields of update.
func (r *AccountsRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update domain.ProfileUpdate, at time.Time) (*domain.Account, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, at}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Email != nil {
		set("email", strings.ToLower(*update.Email))
	}
	if update.Location != nil {
		set("city", nullString(update.Location.City))
		set("country", nullString(update.Location.Country))
	}
	if update.Role != nil {
		set("role", *update.Role)
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + accountColumns
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if isUniqueViolation(err) {
		return nil, domain.ErrAccountAlreadyExists
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus sets the account status.
func (r *AccountsRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (*domain.Account, error) {
	query := `UPDATE accounts SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + accountColumns
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, status, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Delete permanently deletes an account. Credentials, refresh tokens and
// follow edges are removed by foreign key cascades.
func (r *AccountsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, domain.ErrAccountNotFound)
}

// prefixed qualifies each column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
