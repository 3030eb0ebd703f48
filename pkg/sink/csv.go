package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
)

var (
	// OwnersHeader is the header row of the owners file
	OwnersHeader = []string{"Gift ID", "Owner"}
	// LinksHeader is the header row of the valid links file
	LinksHeader = []string{"Gift ID", "Link"}
)

type csvTable struct {
	path   string
	file   *os.File
	writer *csv.Writer
	cursor cursor
}

func openCSVTable(path string, header []string, resuming bool, name string) (*csvTable, Mode, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ModeFresh, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	mode := ModeFor(resuming, path)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == ModeAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, mode, fmt.Errorf("failed to open %s: %w", path, err)
	}

	t := &csvTable{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		cursor: cursor{table: name},
	}

	if mode == ModeFresh {
		if err := t.writer.Write(header); err != nil {
			file.Close()
			return nil, mode, fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}

	return t, mode, nil
}

func (t *csvTable) append(id int64, value string) error {
	if err := t.cursor.check(id); err != nil {
		return err
	}
	if err := t.writer.Write([]string{strconv.FormatInt(id, 10), value}); err != nil {
		return err
	}
	t.cursor.accept(id)
	return nil
}

func (t *csvTable) flush() error {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", t.path, err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", t.path, err)
	}
	return nil
}

// CSVSink writes the owners and valid-link tables as two CSV files
type CSVSink struct {
	mu     sync.Mutex
	owners *csvTable
	links  *csvTable
	logger logger.Logger
}

// OpenCSV opens both files. Each file is appended to only when resuming and
// it already exists; otherwise it is truncated and given a header.
func OpenCSV(ownersPath, linksPath string, resuming bool, log logger.Logger) (*CSVSink, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	owners, ownersMode, err := openCSVTable(ownersPath, OwnersHeader, resuming, "owners")
	if err != nil {
		return nil, err
	}
	links, linksMode, err := openCSVTable(linksPath, LinksHeader, resuming, "valid_links")
	if err != nil {
		owners.file.Close()
		return nil, err
	}

	log = log.WithField("component", "sink")
	log.InfoWithFields("CSV output opened", map[string]interface{}{
		"owners_file": ownersPath,
		"owners_mode": ownersMode.String(),
		"links_file":  linksPath,
		"links_mode":  linksMode.String(),
	})

	return &CSVSink{owners: owners, links: links, logger: log}, nil
}

// AppendOwner buffers an owner record
func (s *CSVSink) AppendOwner(id int64, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners.append(id, owner)
}

// AppendValidLink buffers a valid-link record
func (s *CSVSink) AppendValidLink(id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links.append(id, url)
}

// Flush writes buffered records and syncs both files to disk
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.owners.flush(), s.links.flush())
}

// Close flushes and closes both files
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(
		s.owners.flush(),
		s.links.flush(),
		s.owners.file.Close(),
		s.links.file.Close(),
	)
}
