// Package aggregate folds per-URL parse outcomes into the batch response.
// Both folds are pure and sequential: they run after every fetch task has finished.
package aggregate

import (
	"sort"
	"time"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
)

// NoDomain groups input URLs whose host could not be derived.
// DomainOf never yields an empty host, so the key cannot collide with a real domain.
const NoDomain = ""

const weekLayout = "2006-01-02"

// WeekBucket returns the Monday of now's week in UTC, formatted YYYY-MM-DD
func WeekBucket(now time.Time) string {
	day := now.UTC()
	offset := (int(day.Weekday()) + 6) % 7 // Days since Monday; Sunday belongs to the week that started six days earlier
	monday := time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, time.UTC)
	return monday.Format(weekLayout)
}

// sortByIndex returns results in input order without mutating the caller's slice
func sortByIndex(results []models.URLResult) []models.URLResult {
	ordered := make([]models.URLResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	return ordered
}

// Listing builds the flat listing response: input order, then document order.
// URL-set entries become "url" rows, sitemap-index entries "blogSitemapUrl" rows. Failures are omitted.
func Listing(results []models.URLResult) []models.ListingEntry {
	entries := make([]models.ListingEntry, 0)
	for _, result := range sortByIndex(results) {
		outcome := result.Outcome
		for _, rec := range outcome.Records {
			loc := rec.Loc
			entry := models.ListingEntry{Domain: rec.Domain, LastMod: rec.LastMod}
			switch outcome.Kind {
			case models.OutcomeURLSet:
				entry.URL = &loc
			case models.OutcomeSitemapIndex:
				entry.BlogSitemapURL = &loc
			default:
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

// domainKey is the aggregation key of an input URL
func domainKey(result models.URLResult) string {
	if !result.DomainOK {
		return NoDomain
	}
	return result.Domain
}

// Count builds the per-domain weekly count response.
// Only URL-set records are counted. Every URL that contributed nothing appends one entry to its domain's ledger.
func Count(results []models.URLResult, now time.Time, includeSummary bool) models.CountResult {
	week := WeekBucket(now)

	var (
		sentOrder []string // Distinct input domains, first appearance first
		sent      = make(map[string]bool)
		counts    = make(map[string]int)
		ledger    = make(map[string][]string)
	)

	for _, result := range sortByIndex(results) {
		key := domainKey(result)
		if !sent[key] {
			sent[key] = true
			sentOrder = append(sentOrder, key)
		}

		outcome := result.Outcome
		switch outcome.Kind {
		case models.OutcomeURLSet:
			if len(outcome.Records) == 0 {
				ledger[key] = append(ledger[key], models.NewFailure(models.ReasonEmptyURLSet, "").Error())
				continue
			}
			counts[key] += len(outcome.Records)
		case models.OutcomeSitemapIndex:
			ledger[key] = append(ledger[key], models.NewFailure(models.ReasonIndexNotCounted, "").Error())
		default:
			failure := outcome.Failure
			if failure == nil {
				failure = models.NewFailure(models.ReasonInternal, "no outcome recorded")
			}
			ledger[key] = append(ledger[key], failure.Error())
		}
	}

	output := make([]models.CountEntry, 0, len(counts))
	failedDomains := make([]string, 0)
	for _, domain := range sentOrder {
		if n := counts[domain]; n > 0 {
			output = append(output, models.CountEntry{Domain: domain, Count: n, Week: week})
		} else {
			failedDomains = append(failedDomains, domain)
		}
	}

	result := models.CountResult{Output: output}
	if includeSummary {
		result.Summary = &models.Summary{
			TotalDomainsSent:       len(sentOrder),
			TotalDomainsSuccessful: len(output),
			TotalDomainsFailed:     len(failedDomains),
			FailedDomains:          failedDomains,
			FailedDetails:          ledger,
		}
	}
	return result
}
