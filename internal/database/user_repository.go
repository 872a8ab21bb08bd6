package database

import (
	"context"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.FindOne(ctx, &user, "users", Doc{"id": id}); err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// Register inserts a new user or refreshes the chat binding of an existing
// one. Notification preferences and the creation time are kept.
func (r *UserRepository) Register(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return apperr.InvalidInput("RegisterUser", "user id is required")
	}
	matched, err := r.db.UpdateOne(ctx, "users", Doc{"id": user.ID}, Doc{
		"chat_id":  user.ChatID,
		"username": user.Username,
	})
	if err != nil || matched > 0 {
		return err
	}
	return r.db.Upsert(ctx, "users", Doc{"id": user.ID}, Doc{
		"chat_id":              user.ChatID,
		"username":             user.Username,
		"notification_enabled": user.NotificationEnabled,
		"created_at":           user.CreatedAt.UTC(),
	})
}

// SetNotifications turns due-review reminders on or off
func (r *UserRepository) SetNotifications(ctx context.Context, id string, enabled bool) error {
	matched, err := r.db.UpdateOne(ctx, "users", Doc{"id": id}, Doc{"notification_enabled": enabled})
	if err != nil {
		return err
	}
	if matched == 0 {
		return apperr.NotFound("SetNotifications", "user %s", id)
	}
	return nil
}

// GetUsersForNotification returns users who accept reminders
func (r *UserRepository) GetUsersForNotification(ctx context.Context) ([]models.User, error) {
	query := r.db.x.Rebind("SELECT * FROM users WHERE notification_enabled = ? ORDER BY id")

	var users []models.User
	err := r.db.retry(ctx, "GetUsersForNotification", func() error {
		users = users[:0]
		return r.db.x.SelectContext(ctx, &users, query, true)
	})
	return users, err
}
