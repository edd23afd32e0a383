package zabbix

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Sender submits tuple batches through the zabbix_sender binary.
type Sender struct {
	server     string
	senderPath string
	logger     *slog.Logger
}

// Config for a Sender.
type Config struct {
	Server string // Zabbix server or proxy, host[:port]

	// SenderPath overrides binary lookup. When empty, zabbix_sender is
	// located on PATH.
	SenderPath string

	Logger *slog.Logger
}

// NewSender creates a Sender.
func NewSender(cfg Config) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{
		server:     cfg.Server,
		senderPath: cfg.SenderPath,
		logger:     cfg.Logger,
	}
}

// Send serializes the batch to a temp file and hands it to zabbix_sender.
// The temp file is removed whether or not submission succeeds. A non-zero
// sender exit is an error; its per-item acknowledgement detail is logged
// for diagnosis but never parsed.
func (s *Sender) Send(ctx context.Context, tuples []Tuple) error {
	if len(tuples) == 0 {
		return fmt.Errorf("empty batch")
	}

	senderPath := s.senderPath
	if senderPath == "" {
		var err error
		senderPath, err = exec.LookPath("zabbix_sender")
		if err != nil {
			return fmt.Errorf("zabbix_sender not found on PATH: %w", err)
		}
	}

	batchFile := filepath.Join(os.TempDir(), fmt.Sprintf("wafmon_%s.txt", uuid.NewString()))
	if err := os.WriteFile(batchFile, Serialize(tuples), 0o600); err != nil {
		return fmt.Errorf("writing batch file: %w", err)
	}
	defer os.Remove(batchFile)

	s.logBatchStats(tuples, batchFile)

	// -z server : Zabbix server or proxy to send to
	// -i file   : read "host key clock value" lines from this file
	// -vv       : per-item acknowledgement detail on stdout
	// -T        : lines carry their own timestamps
	cmd := exec.CommandContext(ctx, senderPath,
		"-z", s.server,
		"-i", batchFile,
		"-vv",
		"-T",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.logger.Error("zabbix_sender failed",
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()),
			"stdout", strings.TrimSpace(stdout.String()))
		return fmt.Errorf("zabbix_sender: %w", err)
	}

	s.logger.Debug("zabbix_sender output", "stdout", strings.TrimSpace(stdout.String()))
	s.logger.Info("batch submitted", "tuples", len(tuples), "server", s.server)
	return nil
}

// logBatchStats summarizes clock spread per traffic key so a mis-windowed
// run is visible in debug logs before Zabbix ever graphs it.
func (s *Sender) logBatchStats(tuples []Tuple, batchFile string) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.logger.Debug("batch prepared", "tuples", len(tuples), "file", batchFile)

	clocksByPrefix := make(map[string]map[int64]bool)
	for _, t := range tuples {
		prefix, _, _ := strings.Cut(t.Key, "[")
		if !strings.Contains(prefix, "bytes") && !strings.Contains(prefix, "conn") && !strings.Contains(prefix, "http") {
			continue
		}
		if clocksByPrefix[prefix] == nil {
			clocksByPrefix[prefix] = make(map[int64]bool)
		}
		clocksByPrefix[prefix][t.Clock] = true
	}

	for prefix, clockSet := range clocksByPrefix {
		clocks := make([]int64, 0, len(clockSet))
		for c := range clockSet {
			clocks = append(clocks, c)
		}
		sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })

		var mean float64
		if len(clocks) > 1 {
			mean = float64(clocks[len(clocks)-1]-clocks[0]) / float64(len(clocks)-1)
		}
		s.logger.Debug("batch clock spread",
			"key_prefix", prefix,
			"distinct_clocks", len(clocks),
			"mean_interval_seconds", mean)
	}
}
