/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package provision

import (
	"sync"

	"golang.org/x/time/rate"
)

// collectionLimiter hands out one rate limiter per collection so a slow
// backend table throttles only its own inserts. A non-positive limit means
// unlimited.
type collectionLimiter struct {
	mut            sync.RWMutex
	limiters       map[string]*rate.Limiter
	limiterFactory func() *rate.Limiter
}

// minBurst keeps WaitN callable with a whole batch at once; the burst must
// cover the largest n a caller will request.
func newCollectionLimiter(docsPerSecond, minBurst int) *collectionLimiter {
	limit := rate.Limit(docsPerSecond)
	burst := docsPerSecond
	if burst < minBurst {
		burst = minBurst
	}
	if docsPerSecond <= 0 {
		limit = rate.Inf
		burst = 0
	}
	return &collectionLimiter{
		limiters: map[string]*rate.Limiter{},
		limiterFactory: func() *rate.Limiter {
			return rate.NewLimiter(limit, burst)
		},
	}
}

func (l *collectionLimiter) get(collection string) *rate.Limiter {
	l.mut.RLock()
	limiter, ok := l.limiters[collection]
	l.mut.RUnlock()
	if ok {
		return limiter
	}
	l.mut.Lock()
	defer l.mut.Unlock()
	if limiter, ok := l.limiters[collection]; ok {
		return limiter
	}
	limiter = l.limiterFactory()
	l.limiters[collection] = limiter
	return limiter
}
