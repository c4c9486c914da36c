package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daypilot-dev/daypilot/pkg/utils"
	"github.com/daypilot-dev/daypilot/pkg/whoop"
)

const (
	// ConfigDirName is the daypilot state directory under the base dir.
	ConfigDirName = ".daypilot"
	// ConfigFileName is the JSON config file inside the state directory.
	ConfigFileName = "config.json"
)

// Store reads and writes the WHOOP credential section of the daypilot config
// file. Other top-level sections (location, preferences) belong to other
// parts of the application and are preserved untouched across writes via a
// read-modify-write merge. Every write goes through an atomic rename, so a
// crash mid-write never corrupts the file.
type Store struct {
	// BaseDir is the directory containing .daypilot; empty means the
	// current working directory.
	BaseDir string
}

// Path returns the config file location.
func (s *Store) Path() string {
	return filepath.Join(s.BaseDir, ConfigDirName, ConfigFileName)
}

// LoadCredentials returns the stored WHOOP credentials, or nil when no
// account is connected.
func (s *Store) LoadCredentials() (*whoop.Credentials, error) {
	raw, err := s.readRaw()
	if err != nil {
		return nil, err
	}

	section, ok := raw["whoop"]
	if !ok {
		return nil, nil
	}

	var creds whoop.Credentials
	if err := json.Unmarshal(section, &creds); err != nil {
		return nil, fmt.Errorf("invalid whoop section in %s: %w", s.Path(), err)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("whoop section in %s is missing access_token", s.Path())
	}
	if creds.ConnectedAt.IsZero() {
		return nil, fmt.Errorf("whoop section in %s is missing connected_at", s.Path())
	}
	return &creds, nil
}

// SaveCredentials persists the credential record, merging it into whatever
// else the config file holds. It implements whoop.CredentialStore.
func (s *Store) SaveCredentials(creds *whoop.Credentials) error {
	raw, err := s.readRaw()
	if err != nil {
		return err
	}

	section, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode whoop credentials: %w", err)
	}
	raw["whoop"] = section

	return s.writeRaw(raw)
}

// ClearCredentials removes the stored credential record, leaving the rest of
// the config file intact.
func (s *Store) ClearCredentials() error {
	raw, err := s.readRaw()
	if err != nil {
		return err
	}
	if _, ok := raw["whoop"]; !ok {
		return nil
	}
	delete(raw, "whoop")
	return s.writeRaw(raw)
}

// readRaw loads the config file as raw JSON sections. A missing file is an
// empty config, not an error.
func (s *Store) readRaw() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.Path(), err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", s.Path(), err)
	}
	return raw, nil
}

func (s *Store) writeRaw(raw map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// Tokens live in this file, keep it owner-only.
	return utils.AtomicWriteFile(s.Path(), data, 0600)
}
