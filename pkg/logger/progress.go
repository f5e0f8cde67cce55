package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports paging progress of a long fetch. Total is usually
// unknown for cursor-paginated APIs, so it is optional.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	records     int64
	pages       int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithField("operation", config.Operation).Debug("Starting fetch")
	return tracker
}

// Page records one fetched page holding n records.
func (p *ProgressTracker) Page(n int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.pages++
	p.records += int64(n)
	now := time.Now()

	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fields(now)).Info("Fetch progress")
		p.lastLogTime = now
	}
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	p.logger.WithFields(p.fields(time.Now())).Info("Fetch completed")
}

// CompleteWithError logs final statistics together with the failure
func (p *ProgressTracker) CompleteWithError(err error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	p.logger.WithError(err).WithFields(p.fields(time.Now())).Error("Fetch failed")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	duration := time.Since(p.startTime)
	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(p.records) / duration.Seconds()
	}

	var percentage float64
	if p.total > 0 {
		percentage = float64(p.records) / float64(p.total) * 100
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Records:    p.records,
		Pages:      p.pages,
		Percentage: percentage,
		Duration:   duration,
		Rate:       rate,
	}
}

func (p *ProgressTracker) fields(now time.Time) Fields {
	duration := now.Sub(p.startTime)
	fields := Fields{
		"operation": p.operation,
		"pages":     p.pages,
		"records":   p.records,
		"duration":  duration.String(),
	}
	if duration.Seconds() > 0 {
		fields["rate"] = fmt.Sprintf("%.2f/sec", float64(p.records)/duration.Seconds())
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.records)/float64(p.total)*100)
	}
	return fields
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total,omitempty"`
	Records    int64         `json:"records"`
	Pages      int64         `json:"pages"`
	Percentage float64       `json:"percentage,omitempty"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d records (%.1f%%) in %d pages at %.2f/sec",
			ps.Operation, ps.Records, ps.Total, ps.Percentage, ps.Pages, ps.Rate)
	}
	return fmt.Sprintf("%s: %d records in %d pages at %.2f/sec, elapsed: %v",
		ps.Operation, ps.Records, ps.Pages, ps.Rate, ps.Duration)
}

// TimedOperation executes fn and logs its duration and outcome.
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()
	err := fn()

	log := logger.WithFields(Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	})
	if err != nil {
		log.WithError(err).Error("Operation failed")
	} else {
		log.Info("Operation completed")
	}
	return err
}
