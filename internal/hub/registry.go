// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hub fans decoded progress events out to independent observers.
package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/protocol"
	"github.com/rs/zerolog"
)

func getLog() *zerolog.Logger {
	l := logger.GetHubLogger()
	return &l
}

// Observer receives published events. A returned error or a panic affects
// only this observer.
type Observer interface {
	HandleEvent(ev protocol.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev protocol.Event) error

func (f ObserverFunc) HandleEvent(ev protocol.Event) error { return f(ev) }

// Token identifies one subscription.
type Token uint64

type entry struct {
	token    Token
	observer Observer
}

// Registry holds subscriptions in registration order. Observers must not call
// Publish on the registry that invoked them.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	next    Token

	publishMu sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers o and returns the token that removes it again.
// Subscribing the same observer twice yields two independent subscriptions.
func (r *Registry) Subscribe(o Observer) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries = append(r.entries, entry{token: r.next, observer: o})
	return r.next
}

// Unsubscribe removes the subscription for t. Unknown and already removed
// tokens are ignored.
func (r *Registry) Unsubscribe(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.token == t {
			// Copy so snapshots taken by an in-flight Publish stay intact.
			entries := make([]entry, 0, len(r.entries)-1)
			entries = append(entries, r.entries[:i]...)
			r.entries = append(entries, r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Publish delivers ev synchronously to every observer registered when the
// call starts, in registration order. Failures are collected and returned
// joined; they never stop delivery to the remaining observers.
func (r *Registry) Publish(ev protocol.Event) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := deliver(e, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SubscriberError wraps the failure of one observer.
type SubscriberError struct {
	Token Token
	Err   error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %d: %v", e.Token, e.Err)
}

func (e *SubscriberError) Unwrap() error { return e.Err }

// ErrObserverPanic is wrapped by the SubscriberError of a panicking observer.
var ErrObserverPanic = errors.New("observer panicked")

func deliver(e entry, ev protocol.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			getLog().Error().Interface("panic", rec).Uint64("token", uint64(e.token)).
				Str("kind", string(ev.Kind())).Msg("Observer panicked")
			err = &SubscriberError{Token: e.token, Err: fmt.Errorf("%w: %v", ErrObserverPanic, rec)}
		}
	}()
	if herr := e.observer.HandleEvent(ev); herr != nil {
		return &SubscriberError{Token: e.token, Err: herr}
	}
	return nil
}
