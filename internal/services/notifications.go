package services

import (
	"context"
	"fmt"
	"slices"

	"thinkpay/internal/core"
	"thinkpay/internal/ledger"
)

// Inbox lists and acknowledges a session's notifications.
type Inbox struct {
	store ledger.NotificationStore
}

func NewInbox(store ledger.NotificationStore) *Inbox {
	return &Inbox{store: store}
}

func (b *Inbox) List(s *Session) []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Notifications)
}

// Unread counts unread notifications.
func (b *Inbox) Unread(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, note := range s.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

// MarkRead marks ids as read, or every unread notification when ids is
// empty.
func (b *Inbox) MarkRead(ctx context.Context, s *Session, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		for _, n := range s.Notifications {
			if !n.Read {
				ids = append(ids, n.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
	}
	if err := b.store.MarkNotificationsRead(ctx, s.UserID, ids); err != nil {
		return ledger.ClassifyError("mark notifications read", fmt.Errorf("mark read: %w", err))
	}
	for i := range s.Notifications {
		if slices.Contains(ids, s.Notifications[i].ID) {
			s.Notifications[i].Read = true
		}
	}
	return nil
}
