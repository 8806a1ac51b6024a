package recorder

import "time"

// Outcome classifies how a GetRange call was served.
type Outcome string

const (
	OutcomeHit     Outcome = "HIT"     // cached slice returned
	OutcomeFresh   Outcome = "FRESH"   // nothing cached, series fetched and saved
	OutcomeRefetch Outcome = "REFETCH" // cached slice missed the range, series replaced
	OutcomeStale   Outcome = "STALE"   // refetch produced nothing, cached slice returned
	OutcomeError   Outcome = "ERROR"   // storage failed, nothing returned
)

// SourceSynthetic marks events served by generated data.
const SourceSynthetic = "synthetic"

// FetchEvent records one GetRange call.
type FetchEvent struct {
	RequestID   string
	Timestamp   time.Time
	Symbol      string
	Start       time.Time
	End         time.Time
	Outcome     Outcome
	Source      string // "cache", a provider name, or "synthetic"
	ProviderErr string // why the provider was bypassed, if it was
	Err         string // why the call failed, for OutcomeError
	Rows        int
	Duration    time.Duration
}

// Recorder persists the fetch journal for later inspection.
type Recorder interface {
	RecordFetch(evt *FetchEvent) error
	Recent(symbol string, limit int) ([]FetchEvent, error)
	Close() error
}
