package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticReachability(t *testing.T) {
	r := NewStaticReachability(false)
	assert.False(t, r.IsOnline())

	var got []bool
	cancel := r.Subscribe(func(online bool) {
		got = append(got, online)
	})

	r.SetOnline(true)
	r.SetOnline(true) // no transition, no notification
	r.SetOnline(false)
	assert.Equal(t, []bool{true, false}, got)

	cancel()
	r.SetOnline(true)
	assert.Equal(t, []bool{true, false}, got, "cancelled subscription receives nothing")
}

func TestHTTPMonitor_DetectsTransitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewHTTPMonitor(server.URL, 10*time.Millisecond)
	assert.False(t, m.IsOnline(), "monitor starts pessimistic")

	online := make(chan bool, 8)
	m.Subscribe(func(o bool) { online <- o })

	m.Start(context.Background())
	defer m.Stop()

	select {
	case o := <-online:
		assert.True(t, o)
	case <-time.After(time.Second):
		t.Fatal("monitor never reported online")
	}
	assert.True(t, m.IsOnline())
}

func TestHTTPMonitor_OfflineWhenServerGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := server.URL

	m := NewHTTPMonitor(url, 10*time.Millisecond)
	transitions := make(chan bool, 8)
	m.Subscribe(func(o bool) { transitions <- o })

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)

	server.Close()
	assert.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond,
		"a transport error must flip the monitor offline")

	// First transition online, then offline.
	assert.True(t, <-transitions)
	assert.False(t, <-transitions)
}

func TestAppLifecycle(t *testing.T) {
	l := NewAppLifecycle()
	assert.Equal(t, StateForeground, l.State())

	var got []State
	cancel := l.Subscribe(func(s State) { got = append(got, s) })
	defer cancel()

	l.SetState(StateBackground)
	l.SetState(StateBackground) // no transition
	l.SetState(StateForeground)

	assert.Equal(t, []State{StateBackground, StateForeground}, got)
	assert.Equal(t, "background", StateBackground.String())
}

func TestHTTPRemoteService(t *testing.T) {
	type received struct {
		method string
		body   string
	}
	var last received
	var status atomic.Int32
	status.Store(http.StatusOK)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		last = received{method: r.Method, body: string(body)}
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	svc := NewHTTPRemoteService(server.URL+"/invoices", nil)
	payload := json.RawMessage(`{"id":"inv-1","total":100}`)

	require.NoError(t, svc.Create(context.Background(), payload))
	assert.Equal(t, http.MethodPost, last.method)
	assert.JSONEq(t, string(payload), last.body)

	require.NoError(t, svc.Update(context.Background(), payload))
	assert.Equal(t, http.MethodPut, last.method)

	require.NoError(t, svc.Delete(context.Background(), payload))
	assert.Equal(t, http.MethodDelete, last.method)

	status.Store(http.StatusBadGateway)
	err := svc.Create(context.Background(), payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
