package service

import "context"

// Metrics receives counters from the allocator, the resolver and the click
// tracker. observability.Metrics is the production implementation.
type Metrics interface {
	AllocationCompleted(ctx context.Context, result string)
	AllocationCollision(ctx context.Context)
	ResolutionCompleted(ctx context.Context, result string)
	ClickTracked(ctx context.Context, path, result string)
}

type nopMetrics struct{}

func (nopMetrics) AllocationCompleted(context.Context, string)  {}
func (nopMetrics) AllocationCollision(context.Context)          {}
func (nopMetrics) ResolutionCompleted(context.Context, string)  {}
func (nopMetrics) ClickTracked(context.Context, string, string) {}
