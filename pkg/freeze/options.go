// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"log/slog"
)

// DefaultMaxDepth bounds how deeply nested a value graph may be.
const DefaultMaxDepth = 10000

// Options configures a Freezer.
type Options struct {
	// Registry receives the FrozenType of every struct type frozen.
	// Defaults to DefaultRegistry().
	Registry *Registry

	// Logger is used by the "warn" policy and for debug output.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// NumericBuffers freezes numeric slices into *Buffer instead of
	// *Sequence.
	NumericBuffers bool

	// MaxDepth is the deepest nesting Freeze accepts before failing with
	// ErrMaxDepth.
	MaxDepth int

	// policy and strategy are resolved by NewFreezer so that a bad mode
	// string fails before any traversal.
	policy   func() (*ViolationPolicy, error)
	strategy func() (*Strategy, error)
}

// DefaultOptions returns the defaults: raise, copy, the default registry.
func DefaultOptions() Options {
	return Options{
		Registry: defaultRegistry,
		MaxDepth: DefaultMaxDepth,
		policy:   func() (*ViolationPolicy, error) { return defaultPolicy, nil },
		strategy: func() (*Strategy, error) { return copyStrategy, nil },
	}
}

// Option is a functional option for configuring a Freezer.
type Option func(*Options)

// OnUpdate sets the violation policy by mode string: "raise", "warn",
// "ignore" or one of their aliases.
func OnUpdate(mode string) Option {
	return func(o *Options) {
		o.policy = func() (*ViolationPolicy, error) { return ResolvePolicy(mode) }
	}
}

// OnUpdateFunc sets a callback as the violation policy.
func OnUpdateFunc(handler ViolationHandler) Option {
	return func(o *Options) {
		o.policy = func() (*ViolationPolicy, error) { return PolicyFunc(handler) }
	}
}

// WithPolicy sets an already resolved policy.
func WithPolicy(p *ViolationPolicy) Option {
	return func(o *Options) {
		o.policy = func() (*ViolationPolicy, error) {
			if p == nil {
				return nil, invalidConfig("nil violation policy")
			}
			return p, nil
		}
	}
}

// OnFreeze sets the strategy by mode string: "copy" or "in-place".
func OnFreeze(mode string) Option {
	return func(o *Options) {
		o.strategy = func() (*Strategy, error) { return ResolveStrategy(mode) }
	}
}

// OnFreezeFunc sets a custom duplicate function as the strategy.
func OnFreezeFunc(fn DuplicateFunc) Option {
	return func(o *Options) {
		o.strategy = func() (*Strategy, error) { return StrategyFunc(fn) }
	}
}

// WithStrategy sets an already resolved strategy, e.g. from an
// OriginalTracker.
func WithStrategy(s *Strategy) Option {
	return func(o *Options) {
		o.strategy = func() (*Strategy, error) {
			if s == nil {
				return nil, invalidConfig("nil freeze strategy")
			}
			return s, nil
		}
	}
}

// WithRegistry sets the registry.
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithNumericBuffers enables freezing numeric slices into *Buffer.
func WithNumericBuffers(enabled bool) Option {
	return func(o *Options) {
		o.NumericBuffers = enabled
	}
}

// WithMaxDepth sets the maximum nesting depth.
func WithMaxDepth(depth int) Option {
	return func(o *Options) {
		o.MaxDepth = depth
	}
}
