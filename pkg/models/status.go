package models

// URLStatus represents the crawl state of a known URL in the frontier
type URLStatus string

const (
	URLStatusUnset   URLStatus = ""        // Zero value = unset/unknown
	URLStatusPending URLStatus = "pending" // Known but not yet fetched
	URLStatusCrawled URLStatus = "crawled" // Last fetch succeeded
	URLStatusFailed  URLStatus = "failed"  // Last fetch failed terminally
	URLStatusSkipped URLStatus = "skipped" // Excluded from scheduling
)

// AllURLStatuses lists the operational URL statuses in display order.
var AllURLStatuses = []URLStatus{URLStatusPending, URLStatusCrawled, URLStatusFailed, URLStatusSkipped}

// String implements fmt.Stringer for logging
func (s URLStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s URLStatus) IsValid() bool {
	switch s {
	case URLStatusPending, URLStatusCrawled, URLStatusFailed, URLStatusSkipped:
		return true
	}
	return false
}

// JobStatus represents the state of a CrawlJob
type JobStatus string

const (
	JobStatusUnset      JobStatus = ""
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// AllJobStatuses lists the job statuses in lifecycle order.
var AllJobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// String implements fmt.Stringer for logging
func (s JobStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsActive reports whether a job still occupies its (url, category) slot.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FetchOutcome classifies the result of a single fetch attempt
type FetchOutcome string

const (
	OutcomeSuccess     FetchOutcome = "success"
	OutcomeRetryable   FetchOutcome = "retryable"
	OutcomePermanent   FetchOutcome = "permanent"
	OutcomeRateLimited FetchOutcome = "rate_limited"
)

// String implements fmt.Stringer for logging
func (o FetchOutcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}
