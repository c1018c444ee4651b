package resolver

import (
	"fmt"
	"time"

	"github.com/hanpama/mongoview/internal/logger"
)

// RelationErrorPolicy decides what a failed relation does to its parent.
type RelationErrorPolicy int

const (
	// FailLevel propagates the error and fails the whole resolution.
	FailLevel RelationErrorPolicy = iota
	// OmitField logs the error and leaves the relation field out of the entity.
	OmitField
)

func (p RelationErrorPolicy) String() string {
	if p == OmitField {
		return "omit"
	}
	return "fail"
}

// ParseRelationErrorPolicy accepts "fail" (or empty) and "omit".
func ParseRelationErrorPolicy(s string) (RelationErrorPolicy, error) {
	switch s {
	case "", "fail":
		return FailLevel, nil
	case "omit":
		return OmitField, nil
	}
	return FailLevel, fmt.Errorf("unknown relation error policy %q (want fail or omit)", s)
}

// Options configures a Resolver.
//
// Defaults:
// - Concurrency:    16 concurrent tasks per entity level and per entity
// - MaxInFlight:    32 store queries across the whole resolution
// - RelationErrors: FailLevel
// - Clock:          time.Now
type Options struct {
	Concurrency    int
	MaxInFlight    int64
	RelationErrors RelationErrorPolicy
	Logger         logger.Logger
	Clock          func() time.Time
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Concurrency: 16,
		MaxInFlight: 32,
		Logger:      logger.NewNoopLogger(),
		Clock:       time.Now,
	}
}

func WithConcurrency(n int) Option      { return func(o *Options) { o.Concurrency = n } }
func WithMaxInFlight(n int64) Option    { return func(o *Options) { o.MaxInFlight = n } }
func WithLogger(l logger.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithClock sets the time source for $lastWeekBy windows.
func WithClock(now func() time.Time) Option { return func(o *Options) { o.Clock = now } }

func WithRelationErrorPolicy(p RelationErrorPolicy) Option {
	return func(o *Options) { o.RelationErrors = p }
}
