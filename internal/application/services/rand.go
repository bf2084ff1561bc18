// Package services contains the ritual engine's application services:
// trigger evaluation, anomaly generation, content mutation, and the
// orchestrating engine.
package services

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
)

// lockedRand guards a rand.Rand for use from concurrent request
// handlers and scheduler goroutines. Tests seed it for determinism.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func newSeededRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// IntBetween returns a uniform integer in [min, max] inclusive.
func (l *lockedRand) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return min + l.r.Intn(max-min+1)
}

// Perm returns a random permutation of [0, n).
func (l *lockedRand) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)
}

// weightedChoice samples one value by cumulative weight. Pools are tiny
// so a linear scan over the running sum is enough.
func weightedChoice[T any](rng *lockedRand, pool []ritual.Weighted[T]) T {
	var total float64
	for _, item := range pool {
		total += item.Weight
	}

	var zero T
	if len(pool) == 0 {
		return zero
	}

	draw := rng.Float64() * total
	var running float64
	for _, item := range pool {
		running += item.Weight
		if draw < running {
			return item.Value
		}
	}
	return pool[len(pool)-1].Value
}

func pick[T any](rng *lockedRand, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[rng.Intn(len(items))]
}
