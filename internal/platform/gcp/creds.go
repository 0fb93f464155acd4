package gcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ClientOptions builds read-only client options for the input buckets. An emulator host
// disables auth. Credentials may be a service account file or the JSON itself; empty
// means application default credentials.
func ClientOptions(cfg StorageConfig) ([]option.ClientOption, error) {
	if strings.TrimSpace(cfg.EmulatorHost) != "" {
		return []option.ClientOption{option.WithoutAuthentication()}, nil
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}
	creds := strings.TrimSpace(cfg.Credentials)
	switch {
	case creds == "":
		return opts, nil
	case strings.HasPrefix(creds, "{"):
		var key struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(creds), &key); err != nil {
			return nil, fmt.Errorf("inline gcs credentials: %w", err)
		}
		if key.Type == "" {
			return nil, errors.New(`inline gcs credentials: missing "type"`)
		}
		return append(opts, option.WithCredentialsJSON([]byte(creds))), nil
	default:
		if _, err := os.Stat(creds); err != nil {
			return nil, fmt.Errorf("gcs credentials file: %w", err)
		}
		return append(opts, option.WithCredentialsFile(creds)), nil
	}
}
