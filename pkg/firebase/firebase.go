package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var (
	// ErrUnregistered signals that the device token is no longer valid with
	// FCM and the device should be deactivated.
	ErrUnregistered = errors.New("firebase: registration token not registered")

	// ErrPermanent marks provider rejections that will not succeed on retry.
	ErrPermanent = errors.New("firebase: permanent send failure")
)

// App holds the initialized Firebase app and messaging client
type App struct {
	FirebaseApp *firebase.App
	Messaging   *messaging.Client
}

// InitFirebase initializes the Firebase application and the FCM messaging
// client used by the push delivery worker.
func InitFirebase(ctx context.Context, credentialsPath string) (*App, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}

	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	opt := option.WithCredentialsFile(credentialsPath)

	firebaseApp, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	messagingClient, err := firebaseApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	return &App{FirebaseApp: firebaseApp, Messaging: messagingClient}, nil
}

// Send delivers one push message to a single device token. Errors are
// classified so callers can decide between retrying, dropping and
// deactivating the device:
//   - ErrUnregistered: token is dead, deactivate the device
//   - ErrPermanent: malformed request, do not retry
//   - anything else: transient, safe to retry
func (a *App) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	_, err := a.Messaging.Send(ctx, msg)
	if err == nil {
		return nil
	}

	switch {
	case messaging.IsUnregistered(err):
		return fmt.Errorf("%w: %s", ErrUnregistered, err)
	case errorutils.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err), messaging.IsThirdPartyAuthError(err):
		return fmt.Errorf("%w: %s", ErrPermanent, err)
	default:
		return err
	}
}
