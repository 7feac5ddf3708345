package dashboard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nkiryanov/edps/internal/models"
)

// Admin endpoints. Backend rejects them with 403 for non admin users

func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.get(ctx, "/admin/users", &users)
	return users, err
}

func (s *Service) SetRole(ctx context.Context, update models.RoleUpdate) error {
	if err := validateStruct(update); err != nil {
		return err
	}

	if err := s.api.Do(ctx, http.MethodPost, "/auth/set-role", update, nil); err != nil {
		return fmt.Errorf("set role of user %d: %w", update.UserID, err)
	}

	s.logger.Info("User role updated", "user_id", update.UserID, "role", update.Role)
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ValidationError{Fields: map[string]string{"user_id": "Invalid value"}}
	}

	if err := s.api.Do(ctx, http.MethodDelete, fmt.Sprintf("/admin/user/delete/%d", id), nil, nil); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}

	s.logger.Info("User deleted", "user_id", id)
	return nil
}

// Register creates dashboard user. Token issued for the new user is dropped
func (s *Service) Register(ctx context.Context, user models.RegisterUser) error {
	if err := validateStruct(user); err != nil {
		return err
	}

	if err := s.api.Do(ctx, http.MethodPost, "/auth/register", user, nil); err != nil {
		return fmt.Errorf("register user %s: %w", user.Email, err)
	}

	s.logger.Info("User registered", "email", user.Email)
	return nil
}
