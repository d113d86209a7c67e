package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide transfer/traffic counter.
var Stats = &stats{}

type stats struct {
	Started   atomic.Int64 // transfers accepted since process start
	Completed atomic.Int64 // transfers that reached end-of-stream
	Failed    atomic.Int64 // transfers that ended with an error
	BytesSent atomic.Int64 // payload bytes served to remote receivers
	BytesRecv atomic.Int64 // payload bytes persisted to sinks
}

func (s *stats) AddStarted()   { s.Started.Add(1) }
func (s *stats) AddCompleted() { s.Completed.Add(1) }
func (s *stats) AddFailed()    { s.Failed.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// Active returns the number of transfers that have started but not finished.
func (s *stats) Active() int64 {
	return s.Started.Load() - s.Completed.Load() - s.Failed.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs transfer statistics
// every 10 seconds while there is activity. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevDone int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				done := Stats.Completed.Load() + Stats.Failed.Load()

				secs := reportInterval.Seconds()
				upS := float64(sent-prevSent) / secs
				downS := float64(recv-prevRecv) / secs
				active := Stats.Active()

				if active > 0 || done != prevDone || upS > 10 || downS > 10 {
					pterm.DefaultLogger.Info(formatStats(upS, downS, active, done-prevDone))
				}

				prevSent = sent
				prevRecv = recv
				prevDone = done

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a fixed-width (8 chars) string,
// e.g. "99.0   B", " 1.5 KiB", "98.9 GiB".
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns the reporter line.
func formatStats(upS, downS float64, active, finished int64) string {
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Transfers: %2d active %2d finished",
		FormatBytes(upS),
		FormatBytes(downS),
		active,
		finished,
	)
}
