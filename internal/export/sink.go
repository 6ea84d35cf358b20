package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// Sink receives the results of scheduled rule runs
type Sink interface {
	Publish(ctx context.Context, result models.RunResult) error
	Close() error
}

// Name returns a short sink name for logs
func Name(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// MultiSink fans a result out to several sinks
type MultiSink struct {
	sinks []Sink
}

// Multi returns a sink publishing to every non-nil sink
func Multi(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Publish publishes to every sink. One failing sink does not stop the
// others; their errors are joined.
func (m *MultiSink) Publish(ctx context.Context, result models.RunResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", Name(s), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", Name(s), err))
		}
	}
	return errors.Join(errs...)
}
