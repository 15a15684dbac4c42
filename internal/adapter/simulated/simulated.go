// Package simulated provides a loopback Adapter implementation that stands
// in for the real UWB/CS/RTT/RSSI drivers this specification deliberately
// does not define (§6.3). It generates synthetic measurements on a ticker,
// used by cmd/rangingd for local exercise and by the session engine's own
// tests.
package simulated

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sebas/rangingcore/internal/adapter"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// Config controls the synthetic measurement stream.
type Config struct {
	Technology   rangingapi.Technology
	TickInterval time.Duration
	BaseDistance float64
	JitterM      float64
	FailToStart  bool // test hook: simulate a FailedToStart adapter
}

// Adapter is a ticker-driven fake implementing internal/adapter.Adapter.
type Adapter struct {
	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a simulated Adapter for the given technology.
func New(cfg Config) *Adapter {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 200 * time.Millisecond
	}
	if cfg.BaseDistance <= 0 {
		cfg.BaseDistance = 1.5
	}
	return &Adapter{cfg: cfg}
}

// Technology implements adapter.Adapter.
func (a *Adapter) Technology() rangingapi.Technology { return a.cfg.Technology }

// IsSupported implements adapter.Adapter; the simulated adapter always
// supports its configured technology.
func (a *Adapter) IsSupported(_ context.Context) bool { return true }

// Start implements adapter.Adapter.
func (a *Adapter) Start(ctx context.Context, params rangingapi.TechnologyParams, cb adapter.Callback) error {
	peer := params.PeerIDOf()

	if a.cfg.FailToStart {
		cb.OnClosed(rangingapi.AdapterClosedFailedToStart)
		return rangingapi.ErrFailedToStart
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return rangingapi.ErrInvalidConfig
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.run(runCtx, peer, cb)
	return nil
}

func (a *Adapter) run(ctx context.Context, peer rangingapi.PeerID, cb adapter.Callback) {
	defer close(a.done)

	cb.OnStarted(peer)

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			cb.OnStopped(peer)
			cb.OnClosed(rangingapi.AdapterClosedRequested)
			return
		case now := <-ticker.C:
			m := rangingapi.Measurement{
				Technology:  a.cfg.Technology,
				PeerID:      peer,
				DistanceM:   a.cfg.BaseDistance + a.jitter(),
				RSSI:        -50,
				TimestampNS: now.Sub(start).Nanoseconds(),
				Confidence:  rangingapi.ConfidenceMedium,
			}
			if a.cfg.Technology == rangingapi.TechnologyUWB {
				m.HasAzimuth = true
				m.AzimuthDeg = 0
			}
			cb.OnRangingData(peer, m)
		}
	}
}

func (a *Adapter) jitter() float64 {
	if a.cfg.JitterM <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	u := float64(binary.BigEndian.Uint64(b[:])) / math.MaxUint64
	return (u*2 - 1) * a.cfg.JitterM
}

// Stop implements adapter.Adapter.
func (a *Adapter) Stop(_ context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel := a.cancel
	done := a.done
	a.running = false
	a.mu.Unlock()

	cancel()
	<-done
	slog.Debug("simulated adapter stopped", "technology", a.cfg.Technology)
	return nil
}
