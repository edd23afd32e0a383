// Package state persists the last successful run time between process
// invocations. One JSON file per monitored-host identity keeps parallel
// deployments for different Zabbix hosts from stepping on each other.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunState is the on-disk record. DataType and ZabbixHost are written for
// operator inspection; only LastRunTime is read back.
type RunState struct {
	LastRunTime string `json:"last_run_time"`
	DataType    string `json:"data_type"`
	ZabbixHost  string `json:"zabbix_host"`
}

// Accepted timestamp layouts, newest writer format first. Older deployments
// wrote ISO timestamps without a zone; those parse as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Store reads and writes the last-run file for one host identity.
type Store struct {
	path       string
	zabbixHost string
	logger     *slog.Logger
}

// NewStore creates a store rooted at dir (the OS temp dir when empty) for
// the given Zabbix host.
func NewStore(dir, zabbixHost string, logger *slog.Logger) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	name := fmt.Sprintf("wafmon_last_run_%s.json", safeName(zabbixHost))
	return &Store{
		path:       filepath.Join(dir, name),
		zabbixHost: zabbixHost,
		logger:     logger,
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted last run time. The second return is false
// when no usable state exists; a missing, corrupt, or unparseable file is
// tolerated and treated as a first run.
func (s *Store) Load() (time.Time, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("state file unreadable", "path", s.path, "error", err)
		}
		return time.Time{}, false
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Debug("state file corrupt", "path", s.path, "error", err)
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, st.LastRunTime); err == nil {
			return t.UTC(), true
		}
	}
	s.logger.Debug("state file holds unparseable time", "path", s.path, "last_run_time", st.LastRunTime)
	return time.Time{}, false
}

// Save records runTime as the new last run. The write is atomic: a crash
// mid-save leaves the previous state intact rather than a truncated file.
func (s *Store) Save(runTime time.Time, dataType string) error {
	st := RunState{
		LastRunTime: runTime.UTC().Format(time.RFC3339),
		DataType:    dataType,
		ZabbixHost:  s.zabbixHost,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating state temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// safeName maps a host identity to a filename fragment. Every byte outside
// [A-Za-z0-9_-] becomes an underscore.
func safeName(host string) string {
	out := []byte(host)
	for i, b := range out {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '-', b == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
