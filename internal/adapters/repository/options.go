package repository

import (
	"time"

	"github.com/okian/satobs/pkg/logger"
)

type storeOptions struct {
	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to a store.
type Option func(*storeOptions)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(component string, opts []Option) storeOptions {
	o := storeOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(component)
	}
	return o
}
