package roster

import (
	"encoding/json"
	"os"
)

// Store persists the roster and its selection index to a fixed storage slot.
type Store interface {
	// Load returns the persisted entries and selection index.
	Load() ([]Entry, int, error)
	// Save writes the entries and selection index.
	Save(entries []Entry, selected int) error
}

// persistedRoster is the on-disk JSON layout. It matches the format the
// throttle firmware has always written, so rosters survive upgrades.
type persistedRoster struct {
	Locomotives   []Entry `json:"locomotives"`
	SelectedIndex int     `json:"selected_index"`
}

// FileStore persists the roster as a JSON file at a fixed path.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed roster store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]Entry, int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, 0, err
	}

	var p persistedRoster
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, 0, err
	}

	return p.Locomotives, p.SelectedIndex, nil
}

func (s *FileStore) Save(entries []Entry, selected int) error {
	data, err := json.Marshal(persistedRoster{Locomotives: entries, SelectedIndex: selected})
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
