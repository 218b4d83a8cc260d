package progress

import (
	"context"

	"github.com/okian/satobs/internal/domain/batch"
)

// Multi fans events out to several sinks in order.
type Multi []batch.ProgressSink

var _ batch.ProgressSink = Multi(nil)

// Progress implements batch.ProgressSink.
func (m Multi) Progress(ctx context.Context, p batch.Progress) {
	for _, s := range m {
		s.Progress(ctx, p)
	}
}

// Finished implements batch.ProgressSink.
func (m Multi) Finished(ctx context.Context, r batch.Result) {
	for _, s := range m {
		s.Finished(ctx, r)
	}
}
