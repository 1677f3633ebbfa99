// Package secretstore defines the pluggable secret-store contract used
// by credential resolution (chain step 1): string values keyed by an
// opaque name, with credentials objects serialized as JSON. GCP secrets
// materialize to a temp file (see MaterializeGoogleCredentials).
package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrNotFound = errors.New("secretstore: not found")

// Store is the minimal contract the resolver needs: get-and-consume a
// named secret, and put one (used when the submission controller stages
// inline credentials ahead of a standard job).
type Store interface {
	// GetAndDelete retrieves the named secret and removes it. Credential
	// resolution path 1 consumes the secret this way so a leaked
	// CREDENTIALS_KEY can't be replayed across jobs.
	GetAndDelete(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
}

// Memory is an in-process Store used by tests and local runs.
type Memory struct{ values map[string]string }

func NewMemory() *Memory { return &Memory{values: make(map[string]string)} }

func (m *Memory) Put(_ context.Context, name, value string) error {
	m.values[name] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	delete(m.values, name)
	return nil
}

func (m *Memory) GetAndDelete(_ context.Context, name string) (string, error) {
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.values, name)
	return v, nil
}

// CredentialsFromJSON unmarshals a secret payload into a generic
// key-value credentials map, as produced by every cloud's resolver path.
func CredentialsFromJSON(raw string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("secretstore: decode credentials: %w", err)
	}
	return m, nil
}

// GoogleServiceAccountFile is a scoped resource wrapping a temp file
// holding a materialized GCP service-account JSON blob; Close removes
// it on process exit.
type GoogleServiceAccountFile struct {
	Path string
}

func MaterializeGoogleCredentials(serviceAccountJSON string) (*GoogleServiceAccountFile, error) {
	f, err := os.CreateTemp("", "gcp-sa-*.json")
	if err != nil {
		return nil, fmt.Errorf("secretstore: create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(serviceAccountJSON); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("secretstore: write temp file: %w", err)
	}
	return &GoogleServiceAccountFile{Path: f.Name()}, nil
}

func (g *GoogleServiceAccountFile) Close() error {
	if g == nil || g.Path == "" {
		return nil
	}
	return os.Remove(g.Path)
}

// EnvGoogleApplicationCredentials is the standard environment variable
// the GCP SDKs read a service-account file path from.
const EnvGoogleApplicationCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
