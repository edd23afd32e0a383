// Package health gathers the collector's own process metrics so the
// monitoring host can watch the watcher.
package health

import (
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/waf-mon/internal/zabbix"
)

// Item keys for collector self-metrics.
const (
	KeyCPUPercent      = "waf.collector.cpu_pct"
	KeyMemoryRSSBytes  = "waf.collector.mem_rss_bytes"
	KeyDurationSeconds = "waf.collector.duration_seconds"
)

// Monitor samples the running collector process.
type Monitor struct {
	started time.Time
	proc    *process.Process
	logger  *slog.Logger
}

// NewMonitor starts timing a collection run. A process handle failure is
// tolerated; Tuples then reports only elapsed time.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{started: time.Now(), logger: logger}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Debug("process handle unavailable, self-metrics limited", "error", err)
		return m
	}
	m.proc = proc
	return m
}

// Tuples returns self-metric samples stamped at clock. Metrics that cannot
// be gathered are omitted rather than reported as zero.
func (m *Monitor) Tuples(host string, clock int64) []zabbix.Tuple {
	tuples := []zabbix.Tuple{{
		Host:  host,
		Key:   KeyDurationSeconds,
		Clock: clock,
		Value: time.Since(m.started).Seconds(),
	}}

	if m.proc == nil {
		return tuples
	}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		tuples = append(tuples, zabbix.Tuple{Host: host, Key: KeyCPUPercent, Clock: clock, Value: cpu})
	} else {
		m.logger.Debug("cpu self-metric unavailable", "error", err)
	}

	if mem, err := m.proc.MemoryInfo(); err == nil {
		tuples = append(tuples, zabbix.Tuple{Host: host, Key: KeyMemoryRSSBytes, Clock: clock, Value: int64(mem.RSS)})
	} else {
		m.logger.Debug("memory self-metric unavailable", "error", err)
	}

	return tuples
}
