package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFetch(_ *FetchEvent) error              { return nil }
func (n *NoopRecorder) Recent(_ string, _ int) ([]FetchEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                 { return nil }
