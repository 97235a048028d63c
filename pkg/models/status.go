package models

// OutputMode selects how a batch of parsed sitemaps is aggregated
type OutputMode string

const (
	OutputModeListing OutputMode = "listing" // Flat list of every discovered record
	OutputModeCount   OutputMode = "count"   // Per-domain record counts for the current week
)

// String implements fmt.Stringer for logging
func (m OutputMode) String() string {
	if m == "" {
		return "unset"
	}
	return string(m)
}

// IsValid returns true if the mode is a known output mode
func (m OutputMode) IsValid() bool {
	switch m {
	case OutputModeListing, OutputModeCount:
		return true
	}
	return false
}

// OutcomeKind tags which variant a ParseOutcome holds
type OutcomeKind string

const (
	OutcomeURLSet       OutcomeKind = "urlset"       // Leaf sitemap listing pages
	OutcomeSitemapIndex OutcomeKind = "sitemapindex" // Index listing child sitemaps
	OutcomeFailure      OutcomeKind = "failure"      // Fetch, URL or parse failure
)

// String implements fmt.Stringer for logging
func (k OutcomeKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}

// FailureReason classifies why a single sitemap URL did not contribute records
type FailureReason string

const (
	// Fetch failures
	ReasonTimeout         FailureReason = "timeout"
	ReasonConnectionError FailureReason = "connection-error"
	ReasonTLSError        FailureReason = "tls-error"
	ReasonHTTPError       FailureReason = "http-error"

	// Parse failures
	ReasonNotXML           FailureReason = "not-xml"
	ReasonMalformedXML     FailureReason = "malformed-xml"
	ReasonUnrecognizedRoot FailureReason = "unrecognized-root"

	// Input failures
	ReasonUnparseableURL FailureReason = "unparseable-url"

	// A task that panicked or produced no outcome
	ReasonInternal FailureReason = "internal-error"

	// Count-mode ledger notes: the document parsed but added nothing to the count
	ReasonEmptyURLSet     FailureReason = "empty-urlset"
	ReasonIndexNotCounted FailureReason = "index-not-counted"
)

// String implements fmt.Stringer for logging
func (r FailureReason) String() string {
	if r == "" {
		return "unset"
	}
	return string(r)
}

// IsFetch reports whether the reason originated in the fetcher
func (r FailureReason) IsFetch() bool {
	switch r {
	case ReasonTimeout, ReasonConnectionError, ReasonTLSError, ReasonHTTPError:
		return true
	}
	return false
}

// IsParse reports whether the reason originated in the XML classifier
func (r FailureReason) IsParse() bool {
	switch r {
	case ReasonNotXML, ReasonMalformedXML, ReasonUnrecognizedRoot:
		return true
	}
	return false
}
