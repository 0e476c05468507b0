package historystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
)

const (
	tokenFileName = "auth_token"
	userFileName  = "auth_user.json"
)

// CredentialStore provides the auth token used to decide between remote and
// local persistence, and purges it when the server rejects it.
type CredentialStore interface {
	Token() string
	ClearCredentials() error
}

// FileCredentialStoreConfig is the configuration for the file credential store.
type FileCredentialStoreConfig struct {
	// Dir is the state directory holding the token and user files.
	Dir    string
	Logger log.Logger
}

func (c *FileCredentialStoreConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("state directory is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "historystore.Credentials"})
	return nil
}

// FileCredentialStore keeps credentials as plain files under the state
// directory.
type FileCredentialStore struct {
	dir    string
	logger log.Logger
}

// NewFileCredentialStore creates a new file credential store.
func NewFileCredentialStore(cfg FileCredentialStoreConfig) (*FileCredentialStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &FileCredentialStore{dir: cfg.Dir, logger: cfg.Logger}, nil
}

// Token returns the stored auth token, empty when the client is anonymous.
func (s *FileCredentialStore) Token() string {
	data, err := os.ReadFile(filepath.Join(s.dir, tokenFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveToken persists the auth token.
func (s *FileCredentialStore) SaveToken(token string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, tokenFileName), []byte(token), 0600); err != nil {
		return fmt.Errorf("could not write token file: %w", err)
	}
	return nil
}

// ClearCredentials removes the token and user files. Called when the server
// answers 401, so following writes go to local storage.
func (s *FileCredentialStore) ClearCredentials() error {
	for _, name := range []string{tokenFileName, userFileName} {
		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not remove %s: %w", name, err)
		}
	}
	s.logger.Infof("Cleared stored credentials")
	return nil
}
