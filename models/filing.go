package models

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// FilingForm identifies the regulatory form type of a disclosure.
type FilingForm string

const (
	Form4   FilingForm = "4"
	Form13D FilingForm = "13D"
	Form13G FilingForm = "13G"
)

// Filing represents a single insider-trading disclosure produced by the feed
// adapter. Immutable once produced.
type Filing struct {
	Form    FilingForm
	Ticker  string
	Title   string
	Link    string
	FiledAt time.Time

	// TransactionType is optional; feeds that do not expose it leave it
	// empty and downstream filters treat the absence as a pass.
	TransactionType string
}

// Fingerprint returns the stable dedup identifier for the filing, derived
// from its unique link.
func (f Filing) Fingerprint() string {
	sum := sha1.Sum([]byte(f.Link))
	return hex.EncodeToString(sum[:])
}
