// Package gcp resolves Google credentials shared by Firebase and Cloud Storage.
package gcp

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

var scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
}

// ClientOptions returns options for Google clients. An empty credentialsJSON
// falls back to application default credentials and yields no options.
func ClientOptions(ctx context.Context, credentialsJSON string) ([]option.ClientOption, string, error) {
	if credentialsJSON == "" {
		return nil, "", nil
	}
	creds, err := google.CredentialsFromJSON(ctx, []byte(credentialsJSON), scopes...)
	if err != nil {
		return nil, "", fmt.Errorf("parse google credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, creds.ProjectID, nil
}
