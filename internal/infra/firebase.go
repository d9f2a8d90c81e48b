// README: Firebase Admin SDK initialisation, token verifier and FCM notifier.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// PushSender delivers a data notification to a set of device tokens.
// Per-recipient delivery failures are reported in the returned count only;
// they never fail the call.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (delivered int, err error)
}

// FirebaseClients bundles the Admin SDK services the engine consumes.
type FirebaseClients struct {
	authClient *auth.Client
	msgClient  *messaging.Client
}

// NewFirebaseClients initialises the Firebase Admin SDK. If credentialsFile
// is non-empty it is used as the service-account JSON path; otherwise
// application-default credentials / GOOGLE_APPLICATION_CREDENTIALS are used.
// projectID is required so the SDK can construct the correct
// token-verification URL.
func NewFirebaseClients(ctx context.Context, projectID, credentialsFile string) (*FirebaseClients, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &FirebaseClients{authClient: authClient, msgClient: msgClient}, nil
}

func (f *FirebaseClients) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := f.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// SendMulticast pushes one data message to up to 500 tokens per FCM batch.
func (f *FirebaseClients) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	delivered := 0
	const batchSize = 500
	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		msg := &messaging.MulticastMessage{
			Tokens: tokens[start:end],
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
		}
		resp, err := f.msgClient.SendEachForMulticast(ctx, msg)
		if err != nil {
			return delivered, fmt.Errorf("fcm multicast: %w", err)
		}
		delivered += resp.SuccessCount
	}
	return delivered, nil
}
