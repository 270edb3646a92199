package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// sessionFile is where `connect` remembers the last server a CLI invocation
// should talk to, so `tools`/`call`/`shell`/`validate` can run against it
// without re-specifying --url every time.
type sessionFile struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

func sessionFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".afd", "session.json")
}

func loadSession() (*sessionFile, error) {
	data, err := os.ReadFile(sessionFilePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s sessionFile
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveSession(s sessionFile) error {
	path := sessionFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func clearSession() error {
	err := os.Remove(sessionFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
