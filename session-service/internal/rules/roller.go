package rules

import (
	"math/rand/v2"
	"sync"
)

// Roller - источник натуральных бросков d20.
type Roller interface {
	RollD20() int
}

// RandomRoller бросает d20 на псевдослучайном генераторе; безопасен для конкурентного использования.
type RandomRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomRoller создает бросатель. seed = 0 означает случайное зерно.
func NewRandomRoller(seed uint64) *RandomRoller {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomRoller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomRoller) RollD20() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(20) + 1
}

// FixedRoller возвращает заданные значения по кругу; для тестов и ручного ввода.
type FixedRoller struct {
	mu     sync.Mutex
	values []int
	next   int
}

func NewFixedRoller(values ...int) *FixedRoller {
	return &FixedRoller{values: values}
}

func (r *FixedRoller) RollD20() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 10
	}
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}
