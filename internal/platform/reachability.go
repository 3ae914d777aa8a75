// Package platform provides the collaborator implementations surrounding
// the offline core: network reachability, user notifications, app
// lifecycle, and the thin remote business-service client.
package platform

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Reachability reports connectivity and notifies subscribers of changes.
type Reachability interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// subscribers is the shared fan-out used by reachability implementations.
type subscribers struct {
	mu     sync.Mutex
	subs   map[int]func(online bool)
	nextID int
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]func(bool))}
}

func (s *subscribers) add(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// StaticReachability is a manually toggled Reachability, used in tests and
// by embedding apps that receive connectivity from the host platform.
type StaticReachability struct {
	mu     sync.Mutex
	online bool
	subs   *subscribers
}

// NewStaticReachability creates a manual reachability source.
func NewStaticReachability(online bool) *StaticReachability {
	return &StaticReachability{online: online, subs: newSubscribers()}
}

// IsOnline reports the current state.
func (r *StaticReachability) IsOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Subscribe registers a change listener.
func (r *StaticReachability) Subscribe(fn func(online bool)) func() {
	return r.subs.add(fn)
}

// SetOnline updates the state, notifying subscribers on transitions.
func (r *StaticReachability) SetOnline(online bool) {
	r.mu.Lock()
	changed := r.online != online
	r.online = online
	r.mu.Unlock()
	if changed {
		r.subs.notify(online)
	}
}

// HTTPMonitor detects connectivity by periodically probing an HTTP
// endpoint. While offline it probes with exponential backoff so a
// reconnect is noticed quickly without hammering the network.
type HTTPMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu     sync.Mutex
	online bool
	subs   *subscribers
	cancel context.CancelFunc
}

// NewHTTPMonitor creates a monitor probing url every interval while
// online. The monitor starts pessimistic (offline) until the first probe.
func NewHTTPMonitor(url string, interval time.Duration) *HTTPMonitor {
	return &HTTPMonitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		subs:     newSubscribers(),
	}
}

// IsOnline reports the last observed state.
func (m *HTTPMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a change listener.
func (m *HTTPMonitor) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// Start launches the probe loop.
func (m *HTTPMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()
	go m.run(ctx)
}

// Stop terminates the probe loop.
func (m *HTTPMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *HTTPMonitor) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = m.interval
	bo.MaxElapsedTime = 0

	for {
		online := m.probe(ctx)
		m.setOnline(online)

		wait := m.interval
		if !online {
			wait = bo.NextBackOff()
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// probe counts any HTTP response as reachable; only transport errors mean
// offline.
func (m *HTTPMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (m *HTTPMonitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if changed {
		log.Info().Bool("online", online).Msg("Network reachability changed")
		m.subs.notify(online)
	}
}
