package monitor

import (
	"time"

	"github.com/quaere-ai/toolrelay/internal/metrics"
)

// retentionLoop periodically prunes persisted documents. The wait is
// cancellable, so shutdown never blocks on a full interval; a failed
// sweep shortens the next wait to CleanupRetryInterval.
func (s *Service) retentionLoop() {
	defer s.wg.Done()

	wait := s.config.CleanupInterval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			if ok := s.runRetention(); ok {
				wait = s.config.CleanupInterval
			} else {
				wait = s.config.CleanupRetryInterval
			}
			timer.Reset(wait)
		}
	}
}

// runRetention prunes every persisted document once. Per-document
// failures are logged and the sweep continues: one corrupt file must
// not halt pruning of the rest. Returns false only when the document
// list itself could not be read.
func (s *Service) runRetention() bool {
	tools, err := s.store.ListTools()
	if err != nil {
		s.events.LogPersistError("", err)
		return false
	}

	cutoff := time.Now().UTC().Add(-time.Duration(s.config.RetentionDays) * 24 * time.Hour)
	dropped := 0
	failures := 0
	for _, tool := range tools {
		n, err := s.store.Prune(tool, cutoff)
		if err != nil {
			s.events.LogPersistError(tool, err)
			failures++
			continue
		}
		dropped += n
	}

	s.events.LogRetentionSweep(len(tools), dropped, failures)
	return true
}

// RunRetentionNow triggers an immediate retention sweep (useful for
// testing).
func (s *Service) RunRetentionNow() {
	s.runRetention()
}

func seriesSum(series *metrics.Series) float64 {
	var total float64
	for _, p := range series.Points {
		total += p.Value
	}
	return total
}
