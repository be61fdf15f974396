package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/codebyjuno/slotcal/internal/apperror"
)

// mysqlDuplicateEntry is the MySQL/MariaDB error number for a violated
// unique constraint.
const mysqlDuplicateEntry = 1062

// UserRepository is the gateway to durable user records. Two interchangeable
// implementations exist (MariaDB here, JSON file in file_repository.go);
// the workflows never know which is active.
//
// Create must fail with a conflict when email uniqueness is violated
// concurrently: the pre-check in registration stage 1 has an inherent race
// window, so the store itself is the last line of defense.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

// userRepository implements UserRepository with hand-written MariaDB queries.
// The three security questions are stored as a JSON column -- they are only
// ever read and written as a unit.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user row. A duplicate email maps to a conflict via
// the unique index, regardless of what the earlier pre-check saw.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	questions, err := json.Marshal(user.Questions)
	if err != nil {
		return fmt.Errorf("marshaling security questions: %w", err)
	}

	query := `INSERT INTO users (id, name, email, password_hash, questions, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		questions,
		user.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return apperror.NewConflict("email already registered")
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by id.
// Returns apperror.NotFound if no user exists with this id.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, name, email, password_hash, questions, created_at
	          FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// FindByEmail retrieves a user by normalized email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, name, email, password_hash, questions, created_at
	          FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// EmailExists returns true if a user with the given email already exists.
// Used during registration stage 1 before the expensive password hash.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// scanUser reads one row into a User, decoding the questions JSON column.
func (r *userRepository) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var questions []byte

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&questions,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := json.Unmarshal(questions, &user.Questions); err != nil {
		return nil, fmt.Errorf("unmarshaling security questions: %w", err)
	}

	return user, nil
}
