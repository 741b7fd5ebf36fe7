// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Policy resolution
// =============================================================================

func TestResolvePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"raise", ModeRaise},
		{"exception", ModeRaise},
		{"warn", ModeWarn},
		{"warning", ModeWarn},
		{"ignore", ModeIgnore},
		{"nothing", ModeIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ResolvePolicy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Mode())
		})
	}

	_, err := ResolvePolicy("Raise")
	assert.ErrorIs(t, err, ErrInvalidConfig, "mode strings are case sensitive")
}

func TestPolicyFunc_RejectsNil(t *testing.T) {
	_, err := PolicyFunc(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestViolationPolicy_NilBehavesLikeRaise(t *testing.T) {
	var p *ViolationPolicy
	assert.Equal(t, ModeRaise, p.Mode())
	err := p.Notify(Violation{Op: OpMutate, Message: "nope"})
	assert.ErrorIs(t, err, ErrImmutable)
}

// =============================================================================
// Violation surfacing
// =============================================================================

func TestPolicy_RaiseOnObject(t *testing.T) {
	obj := mustFreeze(t, &Point{X: 1}).(*Object)

	tests := []struct {
		name    string
		mutate  func() error
		op      Operation
		target  string
		message string
	}{
		{"set", func() error { return obj.Set("X", 5) }, OpSetAttr, "X", "Can't assign attribute 'X' on immutable instance"},
		{"delete", func() error { return obj.Delete("X") }, OpDelAttr, "X", "Can't delete attribute 'X' on immutable instance"},
		{"setitem", func() error { return obj.SetItem("k", 1) }, OpSetItem, "k", "Can't set key 'k' on immutable instance"},
		{"delitem", func() error { return obj.DeleteItem("k") }, OpDelItem, "k", "Can't delete key 'k' on immutable instance"},
		{"descriptor", func() error { return obj.SetDescriptor("X", 1) }, OpSetDescriptor, "X", "Can't assign setter on immutable instance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrImmutable)
			assert.EqualError(t, err, tt.message)

			var ve *ViolationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.op, ve.Op)
			assert.Equal(t, tt.target, ve.Target)
			assert.Same(t, obj, ve.Frozen.(*Object))
		})
	}
	assert.Equal(t, 1, obj.Attr("X"))
}

func TestPolicy_WarnLogsAndContinues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	obj := mustFreeze(t, &Point{X: 1}, OnUpdate("warn"), WithLogger(logger)).(*Object)
	err := obj.Set("X", 5)

	assert.NoError(t, err)
	assert.Equal(t, 1, obj.Attr("X"))
	assert.Contains(t, buf.String(), "Can't assign attribute 'X' on immutable instance")
	assert.Contains(t, buf.String(), "op=setattr")
	assert.Contains(t, buf.String(), obj.FreezeID().String())
}

func TestPolicy_IgnoreIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	seq := mustFreeze(t, []int{1, 2}, OnUpdate("ignore"), WithLogger(logger)).(*Sequence)
	before := testutil.ToFloat64(violationsTotal.WithLabelValues(ModeIgnore, string(OpMutate)))

	assert.NoError(t, seq.Append(3))
	assert.Equal(t, 2, seq.Len())
	assert.Empty(t, buf.String())
	assert.Equal(t, before+1, testutil.ToFloat64(violationsTotal.WithLabelValues(ModeIgnore, string(OpMutate))))
}

func TestPolicy_Callback(t *testing.T) {
	var got []Violation
	handler := func(v Violation) error {
		got = append(got, v)
		return nil
	}

	obj := mustFreeze(t, &Pair2{A: &Point{}}, OnUpdateFunc(handler)).(*Object)
	child := obj.Attr("A").(*Object)

	require.NoError(t, child.Set("X", 42))
	require.Len(t, got, 1)
	assert.Same(t, child, got[0].Frozen.(*Object))
	assert.Equal(t, OpSetAttr, got[0].Op)
	assert.Equal(t, "X", got[0].Name)
	assert.Equal(t, 42, got[0].Value)
	assert.Equal(t, obj.FreezeID(), got[0].FreezeID)
	assert.Equal(t, ModeCallback, child.Policy().Mode())
}

func TestPolicy_CallbackErrorPropagates(t *testing.T) {
	denied := errors.New("denied")
	m := mustFreeze(t, map[string]int{"a": 1}, OnUpdateFunc(func(Violation) error { return denied })).(*Map)

	assert.ErrorIs(t, m.Delete("a"), denied)
	assert.True(t, m.Has("a"))
}

// =============================================================================
// Strategy resolution
// =============================================================================

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		inPlace bool
	}{
		{"copy", StrategyCopy, false},
		{"in-place", StrategyInPlace, true},
		{"inplace", StrategyInPlace, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, err := ResolveStrategy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.name, s.Name())
			assert.Equal(t, tt.inPlace, s.InPlace())
		})
	}

	_, err := ResolveStrategy("thaw")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = StrategyFunc(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInPlaceStrategy_ReturnsArgument(t *testing.T) {
	s, err := ResolveStrategy("in-place")
	require.NoError(t, err)

	p := &Point{}
	got, err := s.Duplicate(p)
	require.NoError(t, err)
	assert.Same(t, p, got.(*Point))
}

func TestDeepCopy_PreservesSharingAndCycles(t *testing.T) {
	n := &Node{Name: "n"}
	n.Ref = n

	got, err := DeepCopy(n)
	require.NoError(t, err)
	c := got.(*Node)
	assert.NotSame(t, n, c)
	assert.Same(t, c, c.Ref)

	shared := &Point{X: 3}
	got, err = DeepCopy(&Pair2{A: shared, B: shared})
	require.NoError(t, err)
	pair := got.(*Pair2)
	assert.NotSame(t, shared, pair.A)
	assert.Same(t, pair.A, pair.B)
}

func TestDeepCopy_SharesFrozenValues(t *testing.T) {
	seq := mustFreeze(t, []int{1}).(*Sequence)
	got, err := DeepCopy(seq)
	require.NoError(t, err)
	assert.Same(t, seq, got.(*Sequence))
}
