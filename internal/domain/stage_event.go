package domain

import (
	"context"
	"time"
)

// StageEvent is an unprocessed message from one of the upstream pipeline
// stages (spreadsheet ingestion, KMZ placement extraction, the ASD calculator
// automation, field study capture, or the boundary supplier).
type StageEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
