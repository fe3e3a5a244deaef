// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "time"

// Default reconnection bounds.
const (
	DefaultFloor   = time.Second
	DefaultCeiling = 30 * time.Second
)

// Backoff yields reconnection delays that double after every failure, capped
// at Ceiling. The N-th consecutive delay is min(Floor*2^(N-1), Ceiling).
// Backoff is not safe for concurrent use.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff at its floor. A non-positive floor means
// DefaultFloor, and a ceiling below the floor is raised to it.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, current: floor}
}

// Next returns the delay before the upcoming attempt and advances the
// sequence.
func (b *Backoff) Next() time.Duration {
	d := b.current
	if b.current > b.ceiling/2 {
		b.current = b.ceiling
	} else {
		b.current *= 2
	}
	return d
}

// Current returns the delay Next would return, without advancing.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Reset returns the sequence to its floor.
func (b *Backoff) Reset() {
	b.current = b.floor
}

func (b *Backoff) Floor() time.Duration   { return b.floor }
func (b *Backoff) Ceiling() time.Duration { return b.ceiling }
