// Package credentials keeps provider API keys outside the main config file.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"nova_bridge/pkg/config"
)

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("no credentials stored")

// Credential is a stored API key for one provider.
type Credential struct {
	Provider  string    `json:"provider"`
	APIKey    string    `json:"api_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// minRevealLength is the shortest key whose last four characters are shown.
const minRevealLength = 12

// Masked returns the key with everything but the last four characters
// hidden. Keys shorter than minRevealLength are hidden entirely.
func (c Credential) Masked() string {
	if len(c.APIKey) < minRevealLength {
		return strings.Repeat("*", 8)
	}
	return strings.Repeat("*", 8) + c.APIKey[len(c.APIKey)-4:]
}

type fileFormat struct {
	Credentials map[string]Credential `json:"credentials"`
}

// Store reads and writes credentials.json with 0600 permissions.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the default location of credentials.json.
func DefaultPath() string {
	return filepath.Join(config.Dir(), "credentials.json")
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Set stores the API key for a provider, replacing any previous one.
func (s *Store) Set(provider, apiKey string) error {
	provider = strings.TrimSpace(provider)
	apiKey = strings.TrimSpace(apiKey)
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if apiKey == "" {
		return fmt.Errorf("api key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data.Credentials[provider] = Credential{
		Provider:  provider,
		APIKey:    apiKey,
		UpdatedAt: time.Now().UTC(),
	}

	slog.Debug("credentials_set", "provider", provider, "path", s.path)
	return s.write(data)
}

// Get returns the stored credential for a provider.
func (s *Store) Get(provider string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.read()
	if err != nil {
		slog.Debug("credentials_get_error", "provider", provider, "error", err)
		return Credential{}, err
	}

	cred, ok := data.Credentials[provider]
	if !ok {
		return Credential{}, fmt.Errorf("%w for provider: %s", ErrNotFound, provider)
	}
	return cred, nil
}

// APIKey returns the stored key for a provider or "" when there is none.
func (s *Store) APIKey(provider string) string {
	if s == nil {
		return ""
	}
	cred, err := s.Get(provider)
	if err != nil {
		return ""
	}
	return cred.APIKey
}

// Delete removes the credential for a provider.
func (s *Store) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := data.Credentials[provider]; !ok {
		return fmt.Errorf("%w for provider: %s", ErrNotFound, provider)
	}
	delete(data.Credentials, provider)

	slog.Debug("credentials_delete", "provider", provider, "path", s.path)
	return s.write(data)
}

// List returns all stored credentials sorted by provider.
func (s *Store) List() ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make([]Credential, 0, len(data.Credentials))
	for _, c := range data.Credentials {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) read() (*fileFormat, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileFormat{Credentials: make(map[string]Credential)}, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var data fileFormat
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if data.Credentials == nil {
		data.Credentials = make(map[string]Credential)
	}
	return &data, nil
}

func (s *Store) write(data *fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}
