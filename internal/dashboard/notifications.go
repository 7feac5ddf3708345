package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nkiryanov/edps/internal/models"
)

type NotificationFilter struct {
	UnreadOnly bool
	Skip       int
	Limit      int
}

func (f NotificationFilter) query() url.Values {
	q := url.Values{}
	if f.UnreadOnly {
		q.Set("unread_only", "true")
	}
	if f.Skip > 0 {
		q.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Notifications of current user, newest first
func (s *Service) Notifications(ctx context.Context, filter NotificationFilter) ([]models.Notification, error) {
	path := "/notifications"
	if q := filter.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	var notifications []models.Notification
	err := s.get(ctx, path, &notifications)
	return notifications, err
}

// NotificationCount is the number of unread notifications
func (s *Service) NotificationCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	err := s.get(ctx, "/notifications/count", &resp)
	return resp.UnreadCount, err
}

func (s *Service) MarkRead(ctx context.Context, id int64) (models.Notification, error) {
	path := fmt.Sprintf("/notifications/%d/read", id)

	var notification models.Notification
	if err := s.api.Do(ctx, http.MethodPatch, path, nil, &notification); err != nil {
		return notification, fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return notification, nil
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.api.Do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
