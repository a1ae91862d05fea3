package middleware

import (
	"context"
	"errors"

	"firebase.google.com/go/v4/auth"
)

// FirebaseVerifier checks Firebase ID tokens with the admin SDK
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier wraps an initialized Firebase auth client
func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify returns the Firebase UID of a valid ID token
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	if v.client == nil {
		return "", errors.New("firebase auth client not initialized")
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	return token.UID, nil
}
