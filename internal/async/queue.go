// Package async runs document jobs on a bounded worker pool behind a
// buffered channel.
package async

import (
	"context"
	"time"
)

// Job is one document to process.
type Job struct {
	Key          string // object-store key of the source PDF
	VisionBudget int    // pipeline.AutoVisionBudget derives it from page count
	SubmittedAt  time.Time
	TraceID      string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
