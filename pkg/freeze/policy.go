// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation identifies the kind of mutation that was attempted.
type Operation string

const (
	// OpSetAttr is an attribute assignment on an Object.
	OpSetAttr Operation = "setattr"

	// OpDelAttr is an attribute deletion on an Object.
	OpDelAttr Operation = "delattr"

	// OpSetItem is an item assignment (map key, sequence index).
	OpSetItem Operation = "setitem"

	// OpDelItem is an item deletion.
	OpDelItem Operation = "delitem"

	// OpSetDescriptor is a descriptor-style set on an Object.
	OpSetDescriptor Operation = "setdescriptor"

	// OpMutate is any other container mutator (append, clear, add, ...).
	// Violation.Name carries the method name.
	OpMutate Operation = "mutate"
)

// Violation policy modes.
const (
	ModeRaise    = "raise"
	ModeWarn     = "warn"
	ModeIgnore   = "ignore"
	ModeCallback = "callback"
)

// violationsTotal counts every reported mutation attempt.
var violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "frost_violations_total",
	Help: "Total mutation attempts on frozen values by policy mode and operation",
}, []string{"mode", "op"})

// Violation is the context handed to a ViolationPolicy when code tries to
// mutate a frozen value.
type Violation struct {
	// Frozen is the value that was targeted.
	Frozen any

	// Op is the attempted operation.
	Op Operation

	// Message describes the attempt, e.g.
	// "Can't assign attribute 'x' on immutable instance".
	Message string

	// Name is the attribute or method name involved, if any.
	Name string

	// Key is the key or index involved, if any.
	Key any

	// Value is the value that would have been written, if any.
	Value any

	// FreezeID identifies the Freeze call that produced Frozen.
	// Zero for adapters built directly with NewMap/NewSequence/NewSet.
	FreezeID uuid.UUID
}

// target returns the attribute or key name for error reporting.
func (v Violation) target() string {
	if v.Name != "" {
		return v.Name
	}
	if v.Key != nil {
		return fmt.Sprint(v.Key)
	}
	return ""
}

// ViolationHandler is a caller-supplied reaction to a mutation attempt.
// A non-nil return value is handed back to the code that attempted the
// mutation.
type ViolationHandler func(Violation) error

// ViolationPolicy is the resolved reaction to mutation attempts.
//
// A policy is captured once per Freeze call and shared by every frozen value
// that call produces.
//
// Thread Safety: Safe for concurrent use. Policies are never mutated after
// construction.
type ViolationPolicy struct {
	mode    string
	handler ViolationHandler
	logger  *slog.Logger
}

// defaultPolicy backs adapters built outside a Freeze call.
var defaultPolicy = &ViolationPolicy{mode: ModeRaise}

// ResolvePolicy resolves an on_update mode string.
//
// Description:
//
//	Accepts "raise", "warn" and "ignore", plus the aliases "exception",
//	"warning" and "nothing". Any other string is a configuration error.
//
// Inputs:
//
//	mode - The mode string.
//
// Outputs:
//
//	*ViolationPolicy - The resolved policy.
//	error - Wraps ErrInvalidConfig for unrecognized strings.
func ResolvePolicy(mode string) (*ViolationPolicy, error) {
	switch mode {
	case ModeRaise, "exception":
		return &ViolationPolicy{mode: ModeRaise}, nil
	case ModeWarn, "warning":
		return &ViolationPolicy{mode: ModeWarn}, nil
	case ModeIgnore, "nothing":
		return &ViolationPolicy{mode: ModeIgnore}, nil
	default:
		return nil, invalidConfig(
			"invalid value for on_update parameter, '%s' found, only 'raise', 'warn', and 'ignore' are valid options if passed a string",
			mode)
	}
}

// PolicyFunc wraps a ViolationHandler as a policy.
func PolicyFunc(handler ViolationHandler) (*ViolationPolicy, error) {
	if handler == nil {
		return nil, invalidConfig(
			"invalid value for on_update parameter, 'nil' found, only 'raise', 'warn', 'ignore' or a function are valid options")
	}
	return &ViolationPolicy{mode: ModeCallback, handler: handler}, nil
}

// Mode returns the policy mode: raise, warn, ignore or callback.
func (p *ViolationPolicy) Mode() string {
	if p == nil {
		return ModeRaise
	}
	return p.mode
}

// withLogger returns a copy of p that logs through logger.
func (p *ViolationPolicy) withLogger(logger *slog.Logger) *ViolationPolicy {
	cp := *p
	cp.logger = logger
	return &cp
}

// Notify reports a mutation attempt.
//
// Description:
//
//	raise returns a *ViolationError, warn emits one slog warning and
//	returns nil, ignore returns nil, callback returns the handler's result.
//	A nil policy behaves like raise.
//
// Inputs:
//
//	v - The attempted mutation.
//
// Outputs:
//
//	error - Non-nil when the caller's mutation must be treated as failed.
func (p *ViolationPolicy) Notify(v Violation) error {
	mode := p.Mode()
	violationsTotal.WithLabelValues(mode, string(v.Op)).Inc()

	switch mode {
	case ModeWarn:
		logger := p.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn(v.Message,
			slog.String("op", string(v.Op)),
			slog.String("target", v.target()),
			slog.String("freeze_id", v.FreezeID.String()),
		)
		return nil
	case ModeIgnore:
		return nil
	case ModeCallback:
		return p.handler(v)
	default:
		return &ViolationError{
			Op:      v.Op,
			Target:  v.target(),
			Message: v.Message,
			Frozen:  v.Frozen,
		}
	}
}
