package service

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Decider выдаёт случайное решение да/нет. Через него в сервисы внедряются
// имитация сбоев и исход платежа.
type Decider interface {
	Decide() bool
}

// FixedDecider всегда возвращает одно и то же решение.
type FixedDecider bool

// Decide возвращает зафиксированное решение.
func (d FixedDecider) Decide() bool { return bool(d) }

// RandomDecider отвечает «да» с заданной вероятностью. Последовательность
// воспроизводима при одинаковом seed.
type RandomDecider struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	probability float64
}

// NewRandomDecider создаёт генератор решений с вероятностью probability.
func NewRandomDecider(probability float64, seed int64) *RandomDecider {
	return &RandomDecider{
		rnd:         rand.New(rand.NewSource(seed)),
		probability: probability,
	}
}

// Decide тянет одно решение.
func (d *RandomDecider) Decide() bool {
	if d.probability <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rnd.Float64() < d.probability
}

func orNever(d Decider) Decider {
	if d == nil {
		return FixedDecider(false)
	}
	return d
}

// pause имитирует задержку обработки, прерываясь при отмене запроса.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
