package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
)

// CurrentVersion is the checkpoint format version
const CurrentVersion = 1

// Checkpoint records how far a scan has durably progressed
type Checkpoint struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	StartID    int64  `json:"start_id"`
	EndID      int64  `json:"end_id"`
	// LastFlushedID is the highest ID whose batch was flushed
	LastFlushedID int64 `json:"last_flushed_id"`
	// NextID is the ID to pass as the resume ID to continue the scan
	NextID      int64     `json:"next_id"`
	OwnersFound int       `json:"owners_found"`
	LinksFound  int       `json:"links_found"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

// Manager handles checkpoint operations for one collection
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager storing its file in dir, or in the
// per-user data directory when dir is empty
func NewManager(dir, collection string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", collection)),
		logger:         log.WithField("component", "checkpoint"),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates and saves a checkpoint for a new run
func (m *Manager) Create(runID, collection string, startID, endID int64) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		RunID:         runID,
		Collection:    collection,
		StartID:       startID,
		EndID:         endID,
		LastFlushedID: startID - 1,
		NextID:        startID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       CurrentVersion,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run_id": runID,
		"path":   m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint; it returns nil when none exists
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > CurrentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", checkpoint.Version, CurrentVersion)
	}

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"last_flushed_id": checkpoint.LastFlushedID,
		"owners_found":    checkpoint.OwnersFound,
	})

	return nil
}

// RecordFlush advances the checkpoint to lastFlushedID and saves it
func (m *Manager) RecordFlush(checkpoint *Checkpoint, lastFlushedID int64, owners, links int) error {
	checkpoint.LastFlushedID = lastFlushedID
	checkpoint.NextID = lastFlushedID + 1
	checkpoint.OwnersFound = owners
	checkpoint.LinksFound = links
	return m.Save(checkpoint)
}

// MarkCompleted records that the run reached the end of its range
func (m *Manager) MarkCompleted(checkpoint *Checkpoint) error {
	checkpoint.Completed = true
	return m.Save(checkpoint)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "giftparser")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "giftparser")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "giftparser")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "giftparser")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
