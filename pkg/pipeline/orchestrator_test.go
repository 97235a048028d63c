package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemap-stats/pkg/aggregate"
	"github.com/Sriram-PR/sitemap-stats/pkg/config"
	"github.com/Sriram-PR/sitemap-stats/pkg/fetch"
	"github.com/Sriram-PR/sitemap-stats/pkg/metrics"
	"github.com/Sriram-PR/sitemap-stats/pkg/models"
)

var fixedNow = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func intPtr(i int) *int {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func urlSetXML(host string, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<url><loc>https://%s/p/%d</loc><lastmod>2024-03-0%d</lastmod></url>", host, i, i%9+1)
	}
	b.WriteString("</urlset>")
	return b.String()
}

// fakeFetcher serves canned outcomes and tracks how many fetches run at once
type fakeFetcher struct {
	outcomes map[string]models.FetchOutcome
	delays   map[string]time.Duration
	panicOn  map[string]bool

	calls       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32

	mu       sync.Mutex
	finished []string // completion order
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		outcomes: make(map[string]models.FetchOutcome),
		delays:   make(map[string]time.Duration),
		panicOn:  make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		current := f.maxInflight.Load()
		if n <= current || f.maxInflight.CompareAndSwap(current, n) {
			break
		}
	}

	if f.panicOn[rawURL] {
		panic("boom: " + rawURL)
	}
	if d := f.delays[rawURL]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return models.FetchOutcome{Failure: models.NewFailure(models.ReasonTimeout, ctx.Err().Error())}
		}
	}

	f.mu.Lock()
	f.finished = append(f.finished, rawURL)
	f.mu.Unlock()

	if outcome, ok := f.outcomes[rawURL]; ok {
		return outcome
	}
	return models.FetchOutcome{Failure: models.NewFailure(models.ReasonConnectionError, "no such host")}
}

func newTestOrchestrator(cfg *config.AppConfig, fetcher fetch.HTTPFetcher, m *metrics.Metrics) *Orchestrator {
	o := NewOrchestrator(cfg, fetcher, m, testLogger())
	o.now = func() time.Time { return fixedNow }
	return o
}

func TestRun_CountModeExample(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/sitemap.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("a.test", 2)}

	o := newTestOrchestrator(&config.AppConfig{}, fetcher, nil)
	result := o.Run(context.Background(), []string{"https://a.test/sitemap.xml"})

	assert.Equal(t, models.OutputModeCount, result.Mode)
	assert.NotEmpty(t, result.BatchID)
	require.NotNil(t, result.Counts)
	assert.Equal(t, []models.CountEntry{{Domain: "a.test", Count: 2, Week: "2024-03-11"}}, result.Counts.Output)
	require.NotNil(t, result.Counts.Summary)
	assert.Equal(t, 1, result.Counts.Summary.TotalDomainsSent)
	assert.Equal(t, 1, result.Counts.Summary.TotalDomainsSuccessful)
	assert.Equal(t, 0, result.Counts.Summary.TotalDomainsFailed)
}

func TestRun_ListingModeKeepsInputOrder(t *testing.T) {
	fetcher := newFakeFetcher()
	urls := []string{"https://slow.test/s.xml", "https://fast.test/s.xml", "https://bad.test/s.xml"}
	fetcher.outcomes[urls[0]] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("slow.test", 2)}
	fetcher.outcomes[urls[1]] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("fast.test", 1)}
	fetcher.outcomes[urls[2]] = models.FetchOutcome{StatusCode: 200, Body: "<html>oops</html>"}
	fetcher.delays[urls[0]] = 100 * time.Millisecond

	o := newTestOrchestrator(&config.AppConfig{OutputMode: models.OutputModeListing}, fetcher, nil)
	result := o.Run(context.Background(), urls)

	assert.Equal(t, models.OutputModeListing, result.Mode)
	require.Len(t, result.Listing, 3)
	assert.Equal(t, "https://slow.test/p/0", *result.Listing[0].URL)
	assert.Equal(t, "https://slow.test/p/1", *result.Listing[1].URL)
	assert.Equal(t, "https://fast.test/p/0", *result.Listing[2].URL)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Equal(t, urls[0], fetcher.finished[len(fetcher.finished)-1], "slow URL completes last but is listed first")
}

func TestRunMode_OverridesConfiguredMode(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/s.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("a.test", 1)}
	o := newTestOrchestrator(&config.AppConfig{OutputMode: models.OutputModeCount}, fetcher, nil)

	listing := o.RunMode(context.Background(), []string{"https://a.test/s.xml"}, models.OutputModeListing)
	assert.Equal(t, models.OutputModeListing, listing.Mode)
	assert.Len(t, listing.Listing, 1)
	assert.Nil(t, listing.Counts)

	fallback := o.RunMode(context.Background(), []string{"https://a.test/s.xml"}, models.OutputMode("bogus"))
	assert.Equal(t, models.OutputModeCount, fallback.Mode)
}

func TestRun_TwentyURLsSlowAndFast(t *testing.T) {
	const slowDelay = 300 * time.Millisecond

	fetcher := newFakeFetcher()
	urls := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://site%02d.test/sitemap.xml", i)
		urls = append(urls, u)
		fetcher.outcomes[u] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML(fmt.Sprintf("site%02d.test", i), i+1)}
		if i%2 == 0 {
			fetcher.delays[u] = slowDelay
		}
	}

	t.Run("bounded", func(t *testing.T) {
		f := newFakeFetcher()
		f.outcomes, f.delays = fetcher.outcomes, fetcher.delays
		o := newTestOrchestrator(&config.AppConfig{MaxConcurrency: intPtr(5)}, f, nil)

		result := o.Run(context.Background(), urls)

		require.NotNil(t, result.Counts)
		assert.Len(t, result.Counts.Output, 20, "every URL accounted for exactly once")
		for i, entry := range result.Counts.Output {
			assert.Equal(t, fmt.Sprintf("site%02d.test", i), entry.Domain)
			assert.Equal(t, i+1, entry.Count)
		}
		assert.Equal(t, int32(20), f.calls.Load())
		assert.LessOrEqual(t, f.maxInflight.Load(), int32(5))
		assert.Equal(t, 20, result.Counts.Summary.TotalDomainsSuccessful)
	})

	t.Run("unbounded", func(t *testing.T) {
		f := newFakeFetcher()
		f.outcomes, f.delays = fetcher.outcomes, fetcher.delays
		o := newTestOrchestrator(&config.AppConfig{MaxConcurrency: intPtr(0)}, f, nil)

		start := time.Now()
		results := o.collect(context.Background(), urls, testLogger())
		elapsed := time.Since(start)

		require.Len(t, results, 20)
		for i, r := range results {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, urls[i], r.URL)
			if i%2 == 1 {
				assert.Less(t, r.Duration, slowDelay, "fast URL %d must not wait behind slow ones", i)
			}
		}
		assert.Less(t, elapsed, 2*slowDelay, "slow fetches run side by side")
	})
}

func TestRun_PanicIsIsolated(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.panicOn["https://a.test/crash.xml"] = true
	fetcher.outcomes["https://a.test/ok.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("a.test", 3)}
	fetcher.outcomes["https://b.test/ok.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("b.test", 1)}

	o := newTestOrchestrator(&config.AppConfig{}, fetcher, nil)
	result := o.Run(context.Background(), []string{"https://a.test/crash.xml", "https://a.test/ok.xml", "https://b.test/ok.xml"})

	require.NotNil(t, result.Counts)
	require.Len(t, result.Counts.Output, 2)
	assert.Equal(t, 3, result.Counts.Output[0].Count)
	ledger := result.Counts.Summary.FailedDetails["a.test"]
	require.Len(t, ledger, 1)
	assert.True(t, strings.HasPrefix(ledger[0], "internal-error: panic: boom"), ledger[0])
	assert.Equal(t, int32(0), fetcher.inflight.Load())
}

func TestRun_UnparseableURLsAreNotFetched(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/s.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("a.test", 1)}

	o := newTestOrchestrator(&config.AppConfig{}, fetcher, nil)
	result := o.Run(context.Background(), []string{"not a url", "https://a.test/s.xml", ""})

	assert.Equal(t, int32(1), fetcher.calls.Load())
	summary := result.Counts.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.TotalDomainsSent)
	assert.Equal(t, []string{aggregate.NoDomain}, summary.FailedDomains)
	require.Len(t, summary.FailedDetails[aggregate.NoDomain], 2)
	assert.True(t, strings.HasPrefix(summary.FailedDetails[aggregate.NoDomain][0], "unparseable-url"))
}

func TestRun_EmptyBatch(t *testing.T) {
	o := newTestOrchestrator(&config.AppConfig{}, newFakeFetcher(), nil)

	result := o.Run(context.Background(), nil)

	require.NotNil(t, result.Counts)
	assert.Empty(t, result.Counts.Output)
	assert.Equal(t, 0, result.Counts.Summary.TotalDomainsSent)
}

func TestRun_CancelledContextFailsPendingURLs(t *testing.T) {
	fetcher := newFakeFetcher()
	urls := []string{"https://a.test/1.xml", "https://b.test/1.xml", "https://c.test/1.xml"}
	for _, u := range urls {
		fetcher.delays[u] = 5 * time.Second
	}

	o := newTestOrchestrator(&config.AppConfig{MaxConcurrency: intPtr(1)}, fetcher, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := o.Run(ctx, urls)

	assert.Less(t, time.Since(start), 2*time.Second)
	summary := result.Counts.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.TotalDomainsFailed)
	for _, u := range []string{"a.test", "b.test", "c.test"} {
		require.Len(t, summary.FailedDetails[u], 1)
		assert.True(t, strings.HasPrefix(summary.FailedDetails[u][0], "timeout"), summary.FailedDetails[u][0])
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/s.xml"] = models.FetchOutcome{StatusCode: 200, Body: urlSetXML("a.test", 1)}
	o := newTestOrchestrator(&config.AppConfig{}, fetcher, m)

	o.Run(context.Background(), []string{"https://a.test/s.xml", "https://b.test/s.xml", "::"})

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "sitemap_stats_urls_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			outcomes[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"urlset": 1, "connection-error": 1, "unparseable-url": 1}, outcomes)
}

func TestInspect(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/index.xml"] = models.FetchOutcome{StatusCode: 200, Body: `<?xml version="1.0"?>
<sitemapindex><sitemap><loc>https://a.test/posts.xml</loc></sitemap></sitemapindex>`}
	o := newTestOrchestrator(&config.AppConfig{}, fetcher, nil)

	result := o.Inspect(context.Background(), "https://a.test/index.xml")
	assert.True(t, result.DomainOK)
	assert.Equal(t, "a.test", result.Domain)
	assert.Equal(t, models.OutcomeSitemapIndex, result.Outcome.Kind)
	require.Len(t, result.Outcome.Records, 1)

	bad := o.Inspect(context.Background(), "nope")
	assert.False(t, bad.DomainOK)
	require.NotNil(t, bad.Outcome.Failure)
	assert.Equal(t, models.ReasonUnparseableURL, bad.Outcome.Failure.Reason)
}

// End to end through the real Fetcher against a local server
func TestRun_WithHTTPFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, urlSetXML("blog.test", 2))
	})
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>https://blog.test/posts.xml</loc></sitemap></sitemapindex>`)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<!doctype html><html></html>")
	})
	server := httptest.NewServer(mux) // Unknown paths answer 404
	defer server.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.AppConfig{RequireSuccessStatus: boolPtr(true)}
	_, err := cfg.Validate()
	require.NoError(t, err)

	fetcher := fetch.NewFetcher(fetch.NewClient(cfg.HTTPClientSettings, true, log), cfg, log)
	o := newTestOrchestrator(cfg, fetcher, nil)

	urls := []string{server.URL + "/posts.xml", server.URL + "/index.xml", server.URL + "/page.html", server.URL + "/missing.xml"}
	result := o.Run(context.Background(), urls)

	host := strings.TrimPrefix(server.URL, "http://")
	require.NotNil(t, result.Counts)
	assert.Equal(t, []models.CountEntry{{Domain: host, Count: 2, Week: "2024-03-11"}}, result.Counts.Output)
	assert.Equal(t, []string{"index-not-counted", "not-xml", "http-error: status 404"}, result.Counts.Summary.FailedDetails[host])

	listing := o.RunMode(context.Background(), urls, models.OutputModeListing)
	require.Len(t, listing.Listing, 3)
	assert.Equal(t, "blog.test", *listing.Listing[0].Domain)
	assert.Equal(t, "https://blog.test/posts.xml", *listing.Listing[2].BlogSitemapURL)
}

func TestRun_FailureLogStage(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.test/s.xml"] = models.FetchOutcome{StatusCode: 200, Body: "<html></html>"}

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewOrchestrator(&config.AppConfig{}, fetcher, nil, logrus.NewEntry(log))

	o.Run(context.Background(), []string{"https://a.test/s.xml", "https://b.test/s.xml"})

	stages := make(map[string]logrus.Level)
	for _, entry := range hook.AllEntries() {
		if stage, ok := entry.Data["stage"].(string); ok {
			stages[entry.Data["url"].(string)+" "+stage] = entry.Level
		}
	}
	assert.Equal(t, map[string]logrus.Level{
		"https://a.test/s.xml parse": logrus.WarnLevel,
		"https://b.test/s.xml fetch": logrus.DebugLevel,
	}, stages)
}

func TestFailureStage(t *testing.T) {
	assert.Equal(t, "fetch", failureStage(models.ReasonTimeout))
	assert.Equal(t, "fetch", failureStage(models.ReasonHTTPError))
	assert.Equal(t, "parse", failureStage(models.ReasonMalformedXML))
	assert.Equal(t, "pipeline", failureStage(models.ReasonInternal))
}

func TestOrchestrator_Mode(t *testing.T) {
	o := newTestOrchestrator(&config.AppConfig{OutputMode: models.OutputModeListing}, newFakeFetcher(), nil)
	assert.Equal(t, models.OutputModeListing, o.Mode())

	o = newTestOrchestrator(&config.AppConfig{OutputMode: "table"}, newFakeFetcher(), nil)
	assert.Equal(t, models.OutputModeCount, o.Mode())
}
