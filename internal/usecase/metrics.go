package usecase

import (
	"time"

	"github.com/riskibarqy/match-digest/internal/domain/digest"
)

// DigestMetrics receives workflow measurements. Implementations must be safe
// for concurrent use.
type DigestMetrics interface {
	ObserveStage(stage digest.Stage, elapsed time.Duration)
	RecordOutcome(outcome string)
	RecordIdentityLookup(kind, result string)
	RecordCompletion(kind, result string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(digest.Stage, time.Duration) {}
func (nopMetrics) RecordOutcome(string)                     {}
func (nopMetrics) RecordIdentityLookup(string, string)      {}
func (nopMetrics) RecordCompletion(string, string)          {}

// NopMetrics discards every measurement.
func NopMetrics() DigestMetrics {
	return nopMetrics{}
}

const (
	lookupResultResolved = "resolved"
	lookupResultNotFound = "not_found"
	lookupResultError    = "error"

	completionKindText  = "text"
	completionKindImage = "image"
	completionResultOK  = "ok"
	completionResultErr = "error"
)
