// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/noldarim/wfbuilder/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = testutil.Progress("wf_1", "parameter-extractor", pipeline.StatusRunning, "Analyzing request...")

func TestRegistry_PublishReachesAllInOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		r.Subscribe(ObserverFunc(func(protocol.Event) error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, r.Publish(sample))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_FailingObserverIsIsolated(t *testing.T) {
	r := NewRegistry()
	first := testutil.NewEventRecorder()
	failing := testutil.NewEventRecorder()
	failing.Err = errors.New("render failed")
	last := testutil.NewEventRecorder()

	r.Subscribe(first)
	failTok := r.Subscribe(failing)
	r.Subscribe(ObserverFunc(func(protocol.Event) error { panic("boom") }))
	r.Subscribe(last)

	err := r.Publish(sample)
	require.Error(t, err)
	assert.ErrorIs(t, err, failing.Err)
	assert.ErrorIs(t, err, ErrObserverPanic)

	var se *SubscriberError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, failTok, se.Token)

	assert.Equal(t, []protocol.Event{sample}, first.Events())
	assert.Equal(t, []protocol.Event{sample}, failing.Events())
	assert.Equal(t, []protocol.Event{sample}, last.Events())

	// Later publishes keep working for everybody.
	_ = r.Publish(sample)
	assert.Equal(t, 2, first.Count())
	assert.Equal(t, 2, last.Count())
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := testutil.NewEventRecorder()
	b := testutil.NewEventRecorder()
	ta := r.Subscribe(a)
	r.Subscribe(b)

	r.Unsubscribe(ta)
	r.Unsubscribe(ta)
	r.Unsubscribe(Token(999))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Publish(sample))
	assert.Zero(t, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestRegistry_SameObserverTwice(t *testing.T) {
	r := NewRegistry()
	rec := testutil.NewEventRecorder()
	t1 := r.Subscribe(rec)
	t2 := r.Subscribe(rec)
	assert.NotEqual(t, t1, t2)

	require.NoError(t, r.Publish(sample))
	assert.Equal(t, 2, rec.Count())

	r.Unsubscribe(t1)
	require.NoError(t, r.Publish(sample))
	assert.Equal(t, 3, rec.Count())
}

func TestRegistry_SubscribeDuringPublishMissesInFlightEvent(t *testing.T) {
	r := NewRegistry()
	late := testutil.NewEventRecorder()
	var lateTok Token

	r.Subscribe(ObserverFunc(func(protocol.Event) error {
		if lateTok == 0 {
			lateTok = r.Subscribe(late)
		}
		return nil
	}))

	require.NoError(t, r.Publish(sample))
	assert.Zero(t, late.Count())

	require.NoError(t, r.Publish(sample))
	assert.Equal(t, 1, late.Count())
}

func TestRegistry_UnsubscribeDuringPublish(t *testing.T) {
	r := NewRegistry()
	second := testutil.NewEventRecorder()
	var secondTok Token

	r.Subscribe(ObserverFunc(func(protocol.Event) error {
		r.Unsubscribe(secondTok)
		return nil
	}))
	secondTok = r.Subscribe(second)

	// The snapshot was taken before the removal.
	require.NoError(t, r.Publish(sample))
	assert.Equal(t, 1, second.Count())

	require.NoError(t, r.Publish(sample))
	assert.Equal(t, 1, second.Count())
}

func TestRegistry_EmptyPublish(t *testing.T) {
	assert.NoError(t, NewRegistry().Publish(sample))
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry()
	rec := testutil.NewEventRecorder()
	r.Subscribe(rec)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Publish(sample)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Unsubscribe(r.Subscribe(testutil.NewEventRecorder()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, rec.Count())
	assert.Equal(t, 1, r.Len())
}
