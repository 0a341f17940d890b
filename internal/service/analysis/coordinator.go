package analysis

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
)

// Analyzer is the reviewer generation backend the coordinator fans out to.
type Analyzer interface {
	AnalyzePaper(ctx context.Context, profile review.Profile, paper sessionmodel.Paper) (review.Analysis, error)
}

const defaultTimeout = 45 * time.Second

// Coordinator runs the four reviewer analyses in parallel at session
// start. It is a pure fan-out/fan-in barrier: it returns only once all
// four calls have settled, and a failing or timed-out reviewer never
// fails the batch.
type Coordinator struct {
	analyzer Analyzer
	roster   []review.Profile
	timeout  time.Duration
}

// NewCoordinator builds the coordinator. A non-positive timeout selects
// the default per-reviewer timeout.
func NewCoordinator(analyzer Analyzer, roster []review.Profile, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Coordinator{analyzer: analyzer, roster: roster, timeout: timeout}
}

// Analyze fans the paper out to every reviewer concurrently, each call
// under its own timeout, and fans in once all have settled. Failed
// reviewers are recorded with the degraded unknown entry.
func (c *Coordinator) Analyze(ctx context.Context, paper sessionmodel.Paper) map[review.Reviewer]review.Analysis {
	results := make(map[review.Reviewer]review.Analysis, len(c.roster))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, profile := range c.roster {
		wg.Add(1)
		go func(profile review.Profile) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			analysis, err := c.analyzer.AnalyzePaper(callCtx, profile, paper)
			if err != nil {
				log.Printf("[analysis] reviewer=%s degraded to unknown: %v", profile.Key, err)
				analysis = review.DegradedAnalysis(profile.Key)
			}

			mu.Lock()
			results[profile.Key] = analysis
			mu.Unlock()
		}(profile)
	}
	wg.Wait()

	return results
}
