package progress

import (
	"context"
	"sync"
	"time"
)

// Subscription streams estimates on a fixed tick until the estimate reaches
// 100%, Stop is called or its context is canceled. The channel is closed in
// every case.
type Subscription struct {
	ch   chan State
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe starts streaming estimates measured from start.
func (e *Estimator) Subscribe(ctx context.Context, start time.Time, tick time.Duration) *Subscription {
	return e.subscribe(ctx, start, tick, time.Now)
}

func (e *Estimator) subscribe(ctx context.Context, start time.Time, tick time.Duration, now func() time.Time) *Subscription {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	s := &Subscription{
		ch:   make(chan State, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run(ctx, e, start, tick, now)
	return s
}

// C returns the estimate stream.
func (s *Subscription) C() <-chan State {
	return s.ch
}

// Stop ends the stream and waits until its ticker is released. Safe to call
// more than once and from any goroutine.
func (s *Subscription) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Subscription) run(ctx context.Context, e *Estimator, start time.Time, tick time.Duration, now func() time.Time) {
	ticker := time.NewTicker(tick)
	defer func() {
		ticker.Stop()
		close(s.ch)
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}

		st := e.At(now().Sub(start))
		if st.Done() {
			st = e.Final()
		}

		select {
		case s.ch <- st:
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}

		if st.Done() {
			return
		}
	}
}
