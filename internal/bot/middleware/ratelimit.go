package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает частоту сообщений на пользователя
// скользящим окном. Для платёжного бота это ещё и защита от перебора
// номеров операций.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт ограничитель: limit сообщений за window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки; вызывать на shutdown.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow сообщает, можно ли обработать очередное сообщение пользователя.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := prune(rl.requests[userID], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[userID] = recent
		return false
	}

	rl.requests[userID] = append(recent, now)
	return true
}

// prune отбрасывает отметки старше cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window)
			for userID, times := range rl.requests {
				if recent := prune(times, cutoff); len(recent) == 0 {
					delete(rl.requests, userID)
				} else {
					rl.requests[userID] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}
