package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// UserRepository handles persistence of users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, name, password_hash, grade, role, active, created_at, updated_at`

// FindByID returns a user by its ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername returns a user by its unique username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsernames returns the users matching any of the given usernames,
// keyed by username. Missing usernames are simply absent from the map.
func (r *UserRepository) FindByUsernames(ctx context.Context, usernames []string) (map[string]models.User, error) {
	found := make(map[string]models.User, len(usernames))
	if len(usernames) == 0 {
		return found, nil
	}
	const chunkSize = 100
	for start := 0; start < len(usernames); start += chunkSize {
		end := start + chunkSize
		if end > len(usernames) {
			end = len(usernames)
		}
		chunk := usernames[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, username := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = username
		}
		query := fmt.Sprintf(`SELECT %s FROM users WHERE username IN (%s)`, userColumns, strings.Join(placeholders, ","))
		var users []models.User
		if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
			return nil, fmt.Errorf("find users by usernames: %w", err)
		}
		for _, u := range users {
			found[u.Username] = u
		}
	}
	return found, nil
}

// Create persists a new user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, username, name, password_hash, grade, role, active, created_at, updated_at)
        VALUES (:id, :username, :name, :password_hash, :grade, :role, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
