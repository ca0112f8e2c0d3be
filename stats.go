package dieselxr

import (
	"time"

	"github.com/loov/hrtime"
)

// FrameStats accumulates frame loop timings and logs a summary at a fixed
// interval.
type FrameStats struct {
	Ticks     int
	Rendered  int
	Skipped   int
	FenceWait time.Duration
	Record    time.Duration

	interval  time.Duration
	lastLog   time.Duration
	lastTicks int
}

func NewFrameStats(interval time.Duration) *FrameStats {
	return &FrameStats{
		interval: interval,
		lastLog:  hrtime.Now(),
	}
}

// Mark starts a measurement for AddFenceWait or AddRecord.
func (s *FrameStats) Mark() time.Duration {
	return hrtime.Now()
}

func (s *FrameStats) AddFenceWait(start time.Duration) {
	s.FenceWait += hrtime.Since(start)
}

func (s *FrameStats) AddRecord(start time.Duration) {
	s.Record += hrtime.Since(start)
}

// Tick counts one loop iteration and reports whether a summary was logged.
func (s *FrameStats) Tick(rendered bool) bool {
	s.Ticks++
	if rendered {
		s.Rendered++
	} else {
		s.Skipped++
	}
	if s.interval <= 0 {
		return false
	}
	now := hrtime.Now()
	elapsed := now - s.lastLog
	if elapsed < s.interval {
		return false
	}
	ticks := s.Ticks - s.lastTicks
	Logger().Info("frame stats",
		"tps", float64(ticks)/elapsed.Seconds(),
		"rendered", s.Rendered,
		"skipped", s.Skipped,
		"avg_fence_wait", s.average(s.FenceWait),
		"avg_record", s.average(s.Record),
	)
	s.lastLog = now
	s.lastTicks = s.Ticks
	return true
}

func (s *FrameStats) average(total time.Duration) time.Duration {
	if s.Rendered == 0 {
		return 0
	}
	return total / time.Duration(s.Rendered)
}
