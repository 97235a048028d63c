package models

import "time"

// SitemapRequest is a single entry of the request body
type SitemapRequest struct {
	URL string `json:"url"`
}

// Failure is a tagged failure value carried by fetch and parse outcomes
type Failure struct {
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"` // Human-readable context (status code, decoder message, ...)
}

// Error renders the failure as the string stored in the failure ledger
func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Detail == "" {
		return string(f.Reason)
	}
	return string(f.Reason) + ": " + f.Detail
}

// NewFailure is a small constructor used across packages
func NewFailure(reason FailureReason, detail string) *Failure {
	return &Failure{Reason: reason, Detail: detail}
}

// FetchOutcome is the result of one HTTP GET: either a response or a failure
type FetchOutcome struct {
	StatusCode int
	Body       string
	Failure    *Failure // Non-nil when no usable response was obtained
}

// OK reports whether a response was obtained
func (o FetchOutcome) OK() bool {
	return o.Failure == nil
}

// Record is one <url> or <sitemap> entry extracted from a sitemap document
type Record struct {
	Loc     string  `json:"loc"`
	LastMod *string `json:"lastmod"`
	Domain  *string `json:"domain"` // Host of Loc; nil when Loc is not a parseable absolute URL
}

// ParseOutcome is the classified result of parsing a response body
type ParseOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Records []Record    `json:"records,omitempty"`
	Failure *Failure    `json:"failure,omitempty"`
}

// Failed returns an outcome holding only the given failure
func Failed(f *Failure) ParseOutcome {
	return ParseOutcome{Kind: OutcomeFailure, Failure: f}
}

// URLResult associates a parse outcome with the input URL that produced it
type URLResult struct {
	Index    int    // Position in the request, used to keep input order
	URL      string // Input sitemap URL as received
	Domain   string // Host of URL; empty when DomainOK is false
	DomainOK bool
	Outcome  ParseOutcome
	Duration time.Duration // Time spent fetching and parsing
}

// ListingEntry is one element of a listing-mode response. Exactly one of URL / BlogSitemapURL is set
type ListingEntry struct {
	Domain         *string `json:"domain"`
	URL            *string `json:"url,omitempty"`
	BlogSitemapURL *string `json:"blogSitemapUrl,omitempty"`
	LastMod        *string `json:"lastmod"`
}

// CountEntry is the per-domain aggregate of a count-mode response
type CountEntry struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
	Week   string `json:"week"` // Monday of the current week, YYYY-MM-DD (UTC)
}

// Summary reports which domains contributed and why the rest did not
type Summary struct {
	TotalDomainsSent       int                 `json:"total_domains_sent"`
	TotalDomainsSuccessful int                 `json:"total_domains_successful"`
	TotalDomainsFailed     int                 `json:"total_domains_failed"`
	FailedDomains          []string            `json:"failed_domains"`
	FailedDetails          map[string][]string `json:"failed_details"`
}

// CountResult is the count-mode response body
type CountResult struct {
	Output  []CountEntry `json:"output"`
	Summary *Summary     `json:"summary,omitempty"`
}

// BatchResult is the final result of one batch. Only the field matching Mode is populated
type BatchResult struct {
	BatchID string
	Mode    OutputMode
	Listing []ListingEntry
	Counts  *CountResult
}

// Payload returns the value to serialize as the response body
func (b BatchResult) Payload() interface{} {
	if b.Mode == OutputModeListing {
		if b.Listing == nil {
			return []ListingEntry{}
		}
		return b.Listing
	}
	if b.Counts == nil {
		return CountResult{Output: []CountEntry{}}
	}
	return b.Counts
}
