package service

import (
	"context"
	"time"
)

// Metrics receives timings of the expensive state-handler operations.
type Metrics interface {
	RecordSave(ctx context.Context, documentID string, panels int, took time.Duration, err error)
	RecordReconcile(ctx context.Context, report Report, took time.Duration, err error)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordSave(context.Context, string, int, time.Duration, error)  {}
func (NopMetrics) RecordReconcile(context.Context, Report, time.Duration, error) {}
