package interfaces

import (
	"context"
	"time"
)

// RateStore - общее атомарное хранилище скользящих окон.
type RateStore interface {
	// Allow регистрирует операцию, если в окне меньше limit записей.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
