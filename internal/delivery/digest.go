package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/mailer"
)

// DigestOptions controls a single digest run.
type DigestOptions struct {
	// Date selects the calendar day to summarize. Zero means yesterday.
	Date time.Time
	// UserID restricts the run to one user. Zero means all users.
	UserID uint
	// DryRun reports what would be enqueued without writing any job.
	DryRun bool
	// Force ignores the recipient's digest opt-out.
	Force bool
}

// DigestResult summarizes a digest run.
type DigestResult struct {
	WindowStart   time.Time
	WindowEnd     time.Time
	UsersScanned  int
	JobsEnqueued  int
	UsersSkipped  int
	Notifications int
}

// DigestScheduler enqueues one DigestJob per user who has unread
// notifications inside the window and has not opted out of digest emails.
type DigestScheduler struct {
	notifications repositories.NotificationRepository
	preferences   repositories.PreferenceRepository
	enqueuer      *queue.Enqueuer
	logger        zerolog.Logger
}

// NewDigestScheduler creates a digest scheduler.
func NewDigestScheduler(
	notifications repositories.NotificationRepository,
	preferences repositories.PreferenceRepository,
	enqueuer *queue.Enqueuer,
	logger zerolog.Logger,
) *DigestScheduler {
	return &DigestScheduler{
		notifications: notifications,
		preferences:   preferences,
		enqueuer:      enqueuer,
		logger:        logger,
	}
}

// Run executes one digest pass. A user with zero qualifying notifications
// produces no job.
func (s *DigestScheduler) Run(ctx context.Context, opts DigestOptions) (*DigestResult, error) {
	day := opts.Date
	if day.IsZero() {
		day = time.Now().AddDate(0, 0, -1)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24*time.Hour - time.Nanosecond)

	res := &DigestResult{WindowStart: start, WindowEnd: end}

	var userIDs []uint
	if opts.UserID != 0 {
		userIDs = []uint{opts.UserID}
	} else {
		var err error
		userIDs, err = s.notifications.RecipientsWithUnreadBetween(ctx, start, end)
		if err != nil {
			return res, fmt.Errorf("resolve digest recipients: %w", err)
		}
	}
	res.UsersScanned = len(userIDs)

	for _, userID := range userIDs {
		if !opts.Force {
			prefs, err := s.preferences.GetOrCreate(ctx, userID)
			if err != nil {
				res.UsersSkipped++
				s.logger.Error().Err(err).Uint("user_id", userID).Msg("digest preference load failed, skipping user")
				continue
			}
			if !prefs.EmailSystem {
				res.UsersSkipped++
				continue
			}
		}

		unread, err := s.notifications.UnreadBetween(ctx, userID, start, end)
		if err != nil {
			res.UsersSkipped++
			s.logger.Error().Err(err).Uint("user_id", userID).Msg("digest unread load failed, skipping user")
			continue
		}
		if len(unread) == 0 {
			res.UsersSkipped++
			continue
		}

		ids := make([]uint, len(unread))
		for i, n := range unread {
			ids[i] = n.ID
		}
		res.Notifications += len(ids)

		if opts.DryRun {
			res.JobsEnqueued++
			continue
		}

		job := DigestJob{
			UserID:          userID,
			NotificationIDs: ids,
			WindowStart:     start.Format(time.RFC3339),
			WindowEnd:       end.Format(time.RFC3339),
		}
		if err := s.enqueuer.Enqueue(ctx, job, queue.WithQueue(EmailQueue)); err != nil {
			res.UsersSkipped++
			s.logger.Error().Err(err).Uint("user_id", userID).Msg("digest job enqueue failed")
			continue
		}
		res.JobsEnqueued++
	}

	s.logger.Info().
		Time("window_start", start).
		Time("window_end", end).
		Int("users_scanned", res.UsersScanned).
		Int("jobs_enqueued", res.JobsEnqueued).
		Bool("dry_run", opts.DryRun).
		Msg("digest run complete")
	return res, nil
}

// DigestWorker handles DigestJob tasks by rendering one aggregate email from
// the referenced notifications. Notifications read or deleted since the job
// was enqueued are left out; if nothing remains, no email is sent.
type DigestWorker struct {
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	sender        mailer.EmailSender
	siteName      string
	siteURL       string
	logger        zerolog.Logger
}

// NewDigestWorker creates the digest delivery worker.
func NewDigestWorker(
	notifications repositories.NotificationRepository,
	users repositories.UserRepository,
	sender mailer.EmailSender,
	siteName, siteURL string,
	logger zerolog.Logger,
) *DigestWorker {
	return &DigestWorker{
		notifications: notifications,
		users:         users,
		sender:        sender,
		siteName:      siteName,
		siteURL:       siteURL,
		logger:        logger,
	}
}

// Handler returns the queue handler for DigestJob tasks.
func (w *DigestWorker) Handler() queue.Handler {
	return queue.NewTaskHandler(w.handle)
}

func (w *DigestWorker) handle(ctx context.Context, job DigestJob) error {
	user, err := w.users.GetUserByID(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load user %d: %w", job.UserID, err)
	}
	if user.Email == "" {
		return nil
	}

	var items []*models.Notification
	for _, id := range job.NotificationIDs {
		n, err := w.notifications.GetForDelivery(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load notification %d: %w", id, err)
		}
		if n.IsRead {
			continue
		}
		items = append(items, n)
	}
	if len(items) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] You have %d unread notification(s)", w.siteName, len(items))
	body := w.renderBody(user, items)

	if err := w.sender.Send(ctx, user.Email, subject, body); err != nil {
		if errors.Is(err, mailer.ErrPermanent) {
			w.logger.Warn().Err(err).Uint("user_id", job.UserID).Msg("digest email permanently rejected, dropping")
			return nil
		}
		return fmt.Errorf("send digest for user %d: %w", job.UserID, err)
	}

	w.logger.Debug().Uint("user_id", job.UserID).Int("items", len(items)).Msg("digest email sent")
	return nil
}

func (w *DigestWorker) renderBody(user *models.User, items []*models.Notification) string {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><p>Hi %s,</p>", html.EscapeString(name))
	fmt.Fprintf(&b, "<p>Here is what you missed:</p><ul>")
	for _, n := range items {
		fmt.Fprintf(&b, "<li><strong>%s</strong> %s</li>",
			html.EscapeString(n.Title), html.EscapeString(n.Message))
	}
	fmt.Fprintf(&b, "</ul><p><a href=%q>View all on %s</a></p></body></html>",
		w.siteURL+"/notifications", html.EscapeString(w.siteName))
	return b.String()
}
