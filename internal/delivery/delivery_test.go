package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/waveline/notify-server/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.NotificationPreferences{},
		&models.PushDevice{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	u := models.User{Username: username, DisplayName: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func createNotification(t *testing.T, db *gorm.DB, recipientID uint, typ models.NotificationType, createdAt time.Time) uint {
	t.Helper()
	sender := uint(99)
	n := models.Notification{
		RecipientID: recipientID,
		SenderID:    &sender,
		Type:        typ,
		Title:       "title",
		Message:     "message",
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(&n).Error)
	return n.ID
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// recordingSender captures sent emails and can be primed to fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (s *recordingSender) Sent() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEmail(nil), s.sent...)
}

// fakePushSender returns errors keyed by token and records successes.
type fakePushSender struct {
	mu     sync.Mutex
	errs   map[string]error
	tokens []string
}

func (s *fakePushSender) Send(_ context.Context, token, _, _ string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[token]; ok {
		return err
	}
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *fakePushSender) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}
