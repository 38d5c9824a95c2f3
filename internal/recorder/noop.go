package recorder

import "context"

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(context.Context, *CycleRecord) error            { return nil }
func (n *NoopRecorder) RecordOrder(context.Context, *OrderRecord) error            { return nil }
func (n *NoopRecorder) RecordPositionEvent(context.Context, *PositionEvent) error  { return nil }
func (n *NoopRecorder) RecordLiquidation(context.Context, *LiquidationEvent) error { return nil }
func (n *NoopRecorder) Close() error                                               { return nil }
