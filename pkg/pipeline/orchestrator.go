package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/sitemap-stats/pkg/aggregate"
	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/fetch"
	"github.com/Sriram-PR/sitemap-stats/pkg/metrics"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/parse"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// Orchestrator runs batches of sitemap URLs through fetch, parse and aggregate.
// It holds no per-batch state and is safe for concurrent use.
type Orchestrator struct {
	fetcher        fetch.HTTPFetcher
	metrics        *metrics.Metrics
	log            *logrus.Entry
	maxConcurrency int // 0 = unbounded fan-out
	mode           models.OutputMode
	includeSummary bool
	now            func() time.Time
}

// NewOrchestrator creates an orchestrator from a validated config.
// metrics may be nil.
func NewOrchestrator(cfg *config.AppConfig, fetcher fetch.HTTPFetcher, m *metrics.Metrics, log *logrus.Entry) *Orchestrator {
	mode := cfg.OutputMode
	if !mode.IsValid() {
		mode = models.OutputModeCount
	}
	return &Orchestrator{
		fetcher:        fetcher,
		metrics:        m,
		log:            log.WithField("component", "pipeline"),
		maxConcurrency: cfg.EffectiveMaxConcurrency(),
		mode:           mode,
		includeSummary: cfg.EffectiveIncludeSummary(),
		now:            time.Now,
	}
}

// Mode returns the configured output mode
func (o *Orchestrator) Mode() models.OutputMode {
	return o.mode
}

// Run processes a batch with the configured output mode
func (o *Orchestrator) Run(ctx context.Context, urls []string) models.BatchResult {
	return o.RunMode(ctx, urls, o.mode)
}

// RunMode processes a batch and aggregates it with the given mode.
// An empty or unknown mode falls back to the configured one.
// Individual URL failures never abort the batch; only ctx can cut pending fetches short.
func (o *Orchestrator) RunMode(ctx context.Context, urls []string, mode models.OutputMode) models.BatchResult {
	if !mode.IsValid() {
		mode = o.mode
	}
	startTime := time.Now()
	batchID := uuid.NewString()
	batchLog := o.log.WithFields(logrus.Fields{"batch_id": batchID, "mode": mode})
	batchLog.Infof("Starting batch of %d sitemap URLs (max_concurrency=%d)", len(urls), o.maxConcurrency)

	results := o.collect(ctx, urls, batchLog)

	result := models.BatchResult{BatchID: batchID, Mode: mode}
	switch mode {
	case models.OutputModeListing:
		result.Listing = aggregate.Listing(results)
	default:
		counts := aggregate.Count(results, o.now(), o.includeSummary)
		result.Counts = &counts
	}

	elapsed := time.Since(startTime)
	o.metrics.RecordBatch(mode, elapsed)
	o.logSummary(batchLog, results, elapsed)
	return result
}

// Inspect fetches and classifies a single sitemap URL outside of any batch
func (o *Orchestrator) Inspect(ctx context.Context, rawURL string) models.URLResult {
	result := models.URLResult{URL: rawURL}
	domain, err := parse.DomainOf(rawURL)
	if err != nil {
		result.Outcome = models.Failed(utils.FailureFrom(err))
		return result
	}
	result.Domain, result.DomainOK = domain, true

	start := time.Now()
	result.Outcome = o.fetchAndParse(ctx, rawURL)
	result.Duration = time.Since(start)
	o.metrics.RecordOutcome(result.Outcome)
	return result
}

// collect dispatches one task per URL and returns the outcomes indexed by input position
func (o *Orchestrator) collect(ctx context.Context, urls []string, batchLog *logrus.Entry) []models.URLResult {
	results := make([]models.URLResult, len(urls))

	var sem *semaphore.Weighted
	if o.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(o.maxConcurrency))
	}

	var wg sync.WaitGroup
	for i, rawURL := range urls {
		results[i] = models.URLResult{Index: i, URL: rawURL}

		// --- Domain is derived before any fetch; bad input is never dispatched ---
		domain, err := parse.DomainOf(rawURL)
		if err != nil {
			results[i].Outcome = models.Failed(utils.FailureFrom(err))
			o.metrics.RecordOutcome(results[i].Outcome)
			batchLog.WithField("url", rawURL).Warnf("Skipping unparseable sitemap URL: %v", err)
			continue
		}
		results[i].Domain, results[i].DomainOK = domain, true

		wg.Add(1)
		go func(slot *models.URLResult) { // Each task owns exactly one slot
			defer wg.Done()
			o.runTask(ctx, sem, slot, batchLog)
		}(&results[i])
	}

	wg.Wait()
	return results
}

// runTask fetches and parses one URL into its slot. It never panics past its boundary.
func (o *Orchestrator) runTask(ctx context.Context, sem *semaphore.Weighted, slot *models.URLResult, batchLog *logrus.Entry) {
	taskLog := batchLog.WithFields(logrus.Fields{"url": slot.URL, "domain": slot.Domain})
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC Recovered in sitemap task")
			slot.Outcome = models.Failed(models.NewFailure(models.ReasonInternal, fmt.Sprintf("panic: %v", r)))
		}
		slot.Duration = time.Since(startTime)
		o.metrics.RecordOutcome(slot.Outcome)
	}()

	// --- Acquire a fetch slot (respecting the caller's context) ---
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			taskLog.Warnf("Could not acquire fetch slot: %v", err)
			slot.Outcome = models.Failed(utils.FailureFrom(fmt.Errorf("%w: %v", utils.ErrSemaphoreCanceled, err)))
			return
		}
		defer sem.Release(1)
	}

	o.metrics.FetchStarted()
	fetchStart := time.Now()
	defer func() { o.metrics.FetchFinished(time.Since(fetchStart)) }()

	slot.Outcome = o.fetchAndParse(ctx, slot.URL)

	if failure := slot.Outcome.Failure; failure != nil {
		failLog := taskLog.WithFields(logrus.Fields{"reason": failure.Reason, "stage": failureStage(failure.Reason)})
		if failure.Reason.IsFetch() {
			failLog.Debugf("Sitemap failed: %s", failure.Error()) // Fetcher already logged it
		} else {
			failLog.Warnf("Sitemap failed: %s", failure.Error())
		}
		return
	}
	taskLog.WithFields(logrus.Fields{"kind": slot.Outcome.Kind, "records": len(slot.Outcome.Records)}).Debug("Sitemap parsed")
}

// failureStage names the pipeline step a failure came from
func failureStage(reason models.FailureReason) string {
	switch {
	case reason.IsFetch():
		return "fetch"
	case reason.IsParse():
		return "parse"
	default:
		return "pipeline"
	}
}

func (o *Orchestrator) fetchAndParse(ctx context.Context, rawURL string) models.ParseOutcome {
	fetched := o.fetcher.Fetch(ctx, rawURL)
	if !fetched.OK() {
		return models.Failed(fetched.Failure)
	}
	return parse.Parse(fetched.Body)
}

// logSummary logs one line per batch plus a breakdown of the outcomes
func (o *Orchestrator) logSummary(batchLog *logrus.Entry, results []models.URLResult, elapsed time.Duration) {
	byOutcome := make(map[string]int)
	records := 0
	for _, r := range results {
		byOutcome[metrics.OutcomeLabel(r.Outcome)]++
		records += len(r.Outcome.Records)
	}
	batchLog.WithFields(logrus.Fields{
		"urls":     len(results),
		"records":  records,
		"outcomes": byOutcome,
		"duration": elapsed,
	}).Info("Batch completed")
}
