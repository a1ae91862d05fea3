// Package firebase sets up the Firebase Admin SDK that verifies the ID tokens
// ReelShelf clients sign in with.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"google.golang.org/api/option"
)

// Options selects the service account key and the project whose ID tokens
// are accepted.
type Options struct {
	CredentialsPath string
	// ProjectID overrides the project named in the key file.
	ProjectID string
}

type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// readServiceAccount checks the key file before the SDK does, so a broken
// deployment fails with an error that names the file.
func readServiceAccount(path string) (serviceAccount, error) {
	var sa serviceAccount
	if path == "" {
		return sa, errors.New("firebase: credentials path not provided")
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sa, fmt.Errorf("firebase: credentials file not found at %s", path)
	}
	if err != nil {
		return sa, fmt.Errorf("firebase: read credentials %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return sa, fmt.Errorf("firebase: credentials %s are not valid JSON: %w", path, err)
	}
	if sa.Type != "service_account" {
		return sa, fmt.Errorf("firebase: credentials %s hold a %q key, want a service account", path, sa.Type)
	}
	return sa, nil
}

// NewAuthClient returns the client the token verifier checks ID tokens with
func NewAuthClient(ctx context.Context, opts Options, log *logger.Logger) (*auth.Client, error) {
	sa, err := readServiceAccount(opts.CredentialsPath)
	if err != nil {
		return nil, err
	}
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = sa.ProjectID
	}
	if projectID == "" {
		return nil, errors.New("firebase: no project id in credentials; set FIREBASE_PROJECT_ID")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsFile(opts.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("firebase: init app for %s: %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: auth client for %s: %w", projectID, err)
	}

	log.Info("firebase token verification ready", "project_id", projectID, "service_account", sa.ClientEmail)
	return client, nil
}
