package models

import "time"

// Classification is a computed expiry bucket. It is never stored.
type Classification string

const (
	ClassificationActive       Classification = "active"
	ClassificationExpiringSoon Classification = "expiring_soon"
	ClassificationExpired      Classification = "expired"
)

// ExpiringSoonWindow is how close to expiry a record counts as expiring soon.
const ExpiringSoonWindow = 30 * 24 * time.Hour

// Classify buckets a record by its expiry date relative to now. It reads only
// the expiry date and ignores status.
func Classify(r *Record, now time.Time) Classification {
	return ClassifyExpiry(r.ExpiryDate, now)
}

func ClassifyExpiry(expiry *time.Time, now time.Time) Classification {
	if expiry == nil {
		return ClassificationActive
	}
	if expiry.Before(now) {
		return ClassificationExpired
	}
	if expiry.Sub(now) <= ExpiringSoonWindow {
		return ClassificationExpiringSoon
	}
	return ClassificationActive
}

// ClassifiedRecord is a record annotated with its classification at read time.
type ClassifiedRecord struct {
	*Record
	Classification Classification `json:"classification"`
}

func WithClassification(r *Record, now time.Time) ClassifiedRecord {
	return ClassifiedRecord{Record: r, Classification: Classify(r, now)}
}
