package bus

import "github.com/Tyrannozavr/steamParser/internal/store"

// CheckRequest is published by the scheduler once per tick and
// consumed by exactly one Parsing Worker.
type CheckRequest struct {
	TaskID         string `json:"task_id"`
	AppID          int    `json:"app_id"`
	MarketHashName string `json:"market_hash_name"`
	Attempt        int    `json:"attempt"`
	CorrelationID  string `json:"correlation_id"`
}

// CheckResult is published by a Parsing Worker once per processed
// CheckRequest and consumed by the Result Processor.
type CheckResult struct {
	TaskID        string          `json:"task_id"`
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	Listings      []store.Listing `json:"listings,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
