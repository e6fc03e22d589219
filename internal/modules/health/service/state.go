package service

import (
	"sync/atomic"
	"time"
)

// staleAfter: сколько опрос ордеров может молчать, прежде чем сервис перестанет быть ready.
const staleAfter = 5 * time.Minute

type State struct {
	ready     atomic.Bool
	startedAt time.Time
	now       func() time.Time

	streamConnected atomic.Bool
	lastTickUnix    atomic.Int64 // unix seconds
}

func NewState() *State {
	return &State{startedAt: time.Now(), now: time.Now}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

// Ready: раннер запущен и последний удачный опрос был недавно.
func (s *State) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	t := s.LastTick()
	return t.IsZero() || s.now().Sub(t) < staleAfter
}

func (s *State) SetStreamConnected(v bool) { s.streamConnected.Store(v) }
func (s *State) StreamConnected() bool     { return s.streamConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return s.now().Sub(s.startedAt) }

type Report struct {
	Ready           bool  `json:"ready"`
	StreamConnected bool  `json:"streamConnected"`
	UptimeSec       int64 `json:"uptimeSec"`
	LastTickUnix    int64 `json:"lastTickUnix"`
}

func (s *State) Report() Report {
	r := Report{
		Ready:           s.Ready(),
		StreamConnected: s.StreamConnected(),
		UptimeSec:       int64(s.Uptime().Seconds()),
	}
	if t := s.LastTick(); !t.IsZero() {
		r.LastTickUnix = t.Unix()
	}
	return r
}
