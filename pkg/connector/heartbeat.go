// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// heartbeatGrace is added to the interval before a connection counts as stale.
const heartbeatGrace = 3 * time.Second

// HeartbeatState records the last heartbeat seen on a connection. The
// classifier writes it and liveness monitors read it.
type HeartbeatState struct {
	last     atomic.Int64
	interval atomic.Int64
}

// NewHeartbeatState returns a state with the given initial interval and no
// heartbeat recorded.
func NewHeartbeatState(interval time.Duration) *HeartbeatState {
	hs := &HeartbeatState{}
	hs.SetInterval(interval)
	return hs
}

// Beat records a heartbeat at t.
func (hs *HeartbeatState) Beat(t time.Time) {
	hs.last.Store(t.UnixNano())
}

// LastBeat returns the time of the last recorded heartbeat.
func (hs *HeartbeatState) LastBeat() time.Time {
	return time.Unix(0, hs.last.Load())
}

// SetInterval updates the expected heartbeat interval. Non-positive values
// are ignored.
func (hs *HeartbeatState) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	hs.interval.Store(int64(d))
}

func (hs *HeartbeatState) Interval() time.Duration {
	return time.Duration(hs.interval.Load())
}

// Stale reports whether no heartbeat has been seen for longer than the
// interval plus the grace period as of now.
func (hs *HeartbeatState) Stale(now time.Time) bool {
	return now.Sub(hs.LastBeat()) > hs.Interval()+heartbeatGrace
}

// LivenessMonitor periodically checks a HeartbeatState and declares the
// connection dead once heartbeats stop arriving. A dead monitor never
// becomes alive again; a new lifecycle connect starts a new monitor.
type LivenessMonitor struct {
	state  *HeartbeatState
	selfID int64
	log    zerolog.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) bool
	onDead func()
	// closed, when set, is closed once the connection itself has ended.
	closed <-chan struct{}

	dead atomic.Bool
	done chan struct{}
}

// NewLivenessMonitor creates a monitor for the connection of selfID. Call Run
// to start it.
func NewLivenessMonitor(state *HeartbeatState, selfID int64, log zerolog.Logger) *LivenessMonitor {
	return &LivenessMonitor{
		state:  state,
		selfID: selfID,
		log:    log.With().Str("component", "liveness").Int64("self_id", selfID).Logger(),
		now:    time.Now,
		sleep:  sleepContext,
		done:   make(chan struct{}),
	}
}

// Run checks the heartbeat state until it goes stale or ctx is canceled.
func (lm *LivenessMonitor) Run(ctx context.Context) {
	defer close(lm.done)
	lm.log.Debug().Msg("Liveness monitor started")
	for {
		interval := lm.state.Interval()
		now := lm.now()
		if lm.state.Stale(now) {
			if lm.connectionClosed() {
				lm.log.Debug().Msg("Connection already closed, liveness monitor stopped")
				return
			}
			lm.dead.Store(true)
			lm.log.Warn().
				Time("last_heartbeat", lm.state.LastBeat()).
				Dur("interval", interval).
				Msg("Gateway heartbeat lost, connection considered dead")
			if lm.onDead != nil {
				lm.onDead()
			}
			return
		}
		lm.log.Debug().Dur("interval", interval).Msg("Heartbeat ok")
		if !lm.sleep(ctx, interval) {
			lm.log.Debug().Msg("Liveness monitor stopped")
			return
		}
	}
}

// Alive reports whether the monitor has not declared the connection dead.
func (lm *LivenessMonitor) Alive() bool {
	return !lm.dead.Load()
}

func (lm *LivenessMonitor) connectionClosed() bool {
	if lm.closed == nil {
		return false
	}
	select {
	case <-lm.closed:
		return true
	default:
		return false
	}
}

// Done is closed when Run returns.
func (lm *LivenessMonitor) Done() <-chan struct{} {
	return lm.done
}

func (lm *LivenessMonitor) SelfID() int64 {
	return lm.selfID
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
