// Command rangingd runs the ranging core as a standalone process: the
// Session Manager, OOB Connection Manager, and metrics endpoint, wired
// together with the simulated adapter and loopback transport so the whole
// negotiate/start/range/stop path can be exercised without real radios.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebas/rangingcore/internal/adapter"
	"github.com/sebas/rangingcore/internal/adapter/simulated"
	"github.com/sebas/rangingcore/internal/banner"
	"github.com/sebas/rangingcore/internal/config"
	"github.com/sebas/rangingcore/internal/connmgr"
	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/internal/logger"
	rangingmetrics "github.com/sebas/rangingcore/internal/metrics"
	"github.com/sebas/rangingcore/internal/session"
	"github.com/sebas/rangingcore/internal/transport/loopback"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional)")
	demo := flag.Bool("demo", true, "run a loopback self-test session on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	banner.Print("RANGINGD", []banner.ConfigLine{
		{Label: "Metrics", Value: fmt.Sprintf("%s%s", cfg.Metrics.Addr, cfg.Metrics.Path)},
		{Label: "Max Sessions", Value: fmt.Sprintf("%d", cfg.Ranging.MaxSessions)},
		{Label: "Stop Deadline", Value: cfg.Ranging.SessionStopDeadline.String()},
		{Label: "Log Level", Value: cfg.Log.Level},
	})

	logger.Init(cfg.Log.Level, os.Stdout)

	registry := prometheus.NewRegistry()
	collector := rangingmetrics.NewCollector(registry)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "metrics server:", err)
		}
	}()

	connManager := connmgr.NewManager(nil)

	capProvider := &engine.CapabilityProvider{
		Local: defaultCapabilityDescriptor(),
	}

	mgr := session.NewManager(session.ManagerConfig{
		CapabilityProvider: capProvider,
		ConnManager:        connManager,
		AdapterFactory:     simulatedAdapterFactory,
		Fusion:             nil, // sensor fusion is an external collaborator (§1); none wired by default
		Metrics:            collector,
		MaxSessions:        cfg.Ranging.MaxSessions,
		StopDeadline:       cfg.Ranging.SessionStopDeadline,
		MaxConcurrentNegotiations: cfg.Ranging.MaxConcurrentNegotiations,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *demo {
		runLoopbackDemo(ctx, mgr, connManager)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Println("received signal, shutting down:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Ranging.SessionStopDeadline+5*time.Second)
	defer shutdownCancel()
	mgr.CloseAll(shutdownCtx, rangingapi.ClosedRequested)

	_ = metricsSrv.Close()
	fmt.Println("rangingd stopped")
}

// defaultCapabilityDescriptor is the local device's capability set; in a
// production build this would be populated from the radio stack instead of
// a fixed literal.
func defaultCapabilityDescriptor() rangingapi.CapabilityDescriptor {
	return rangingapi.CapabilityDescriptor{
		Supported: map[rangingapi.Technology]bool{
			rangingapi.TechnologyUWB:  true,
			rangingapi.TechnologyCS:   true,
			rangingapi.TechnologyRTT:  true,
			rangingapi.TechnologyRSSI: true,
		},
		UWB: rangingapi.UWBCapability{
			Channels:        []int{5, 9},
			PreambleIndices: []int{9, 10, 11},
			ConfigIDs:       []int{1, 2},
			SlotDurationsMS: []int{1, 2},
			IntervalRange:   rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
			LocalAddress:    0xA5A5A5A5,
		},
		CS: rangingapi.CSCapability{
			SecurityLevels: []rangingapi.CSSecurityLevel{rangingapi.CSSecurityBasic, rangingapi.CSSecuritySecure},
			IntervalRange:  rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
		RTT: rangingapi.RTTCapability{
			ServiceNames:    []string{"rangingd-rtt"},
			MatchFilters:    []string{"rangingd"},
			MaxBandwidthMHz: 80,
			RxChains:        2,
			IntervalRange:   rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
		RSSI: rangingapi.RSSICapability{
			BluetoothAddress: "00:11:22:33:44:55",
			IntervalRange:    rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
	}
}

// simulatedAdapterFactory builds a simulated.Adapter per technology,
// standing in for the real UWB/CS/RTT/RSSI drivers (§6.3).
func simulatedAdapterFactory(tech rangingapi.Technology) (adapter.Adapter, error) {
	return simulated.New(simulated.Config{
		Technology:   tech,
		TickInterval: 200 * time.Millisecond,
		BaseDistance: 1.5,
		JitterM:      0.1,
	}), nil
}

// runLoopbackDemo exercises a full OOB negotiation and the ranging that
// follows it between two in-process sessions connected by a loopback transport,
// so the core can be demonstrated without any real peer device.
func runLoopbackDemo(ctx context.Context, mgr *session.Manager, connManager *connmgr.Manager) {
	peerID := rangingapi.NewPeerID()
	attribution := rangingapi.AttributionToken(rangingapi.NewPeerID())

	pair := loopback.NewPair()

	initiatorSess, err := mgr.CreateSession(attribution, &demoCallback{name: "initiator"}, rangingapi.GoExecutor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: create initiator session:", err)
		return
	}
	responderSess, err := mgr.CreateSession(attribution, &demoCallback{name: "responder"}, rangingapi.GoExecutor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: create responder session:", err)
		return
	}

	connManager.Register(initiatorSess.ID(), peerID, pair.A, 0)
	connManager.Register(responderSess.ID(), peerID, pair.B, 0)

	go func() {
		if err := responderSess.Start(ctx, rangingapi.StartPreference{
			Role: rangingapi.RoleResponder,
			Peers: []rangingapi.PeerPreference{{
				PeerID: peerID,
				UseOOB: true,
			}},
		}); err != nil {
			fmt.Fprintln(os.Stderr, "demo: responder start:", err)
		}
	}()

	go func() {
		if err := initiatorSess.Start(ctx, rangingapi.StartPreference{
			Role: rangingapi.RoleInitiator,
			Peers: []rangingapi.PeerPreference{{
				PeerID: peerID,
				UseOOB: true,
			}},
			MeasurementLimit: 0,
		}); err != nil {
			fmt.Fprintln(os.Stderr, "demo: initiator start:", err)
		}
	}()
}

// demoCallback logs ranging events to stdout for the loopback self-test.
type demoCallback struct {
	name string
}

func (c *demoCallback) OnStarted(peer rangingapi.PeerID, technology rangingapi.Technology) {
	fmt.Printf("[demo:%s] started peer=%s technology=%s\n", c.name, peer, technology)
}

func (c *demoCallback) OnStartFailed(peer rangingapi.PeerID, reason rangingapi.StartFailureReason) {
	fmt.Printf("[demo:%s] start failed peer=%s reason=%s\n", c.name, peer, reason)
}

func (c *demoCallback) OnData(peer rangingapi.PeerID, measurement rangingapi.Measurement) {
	fmt.Printf("[demo:%s] data peer=%s technology=%s distance=%.2fm\n", c.name, peer, measurement.Technology, measurement.DistanceM)
}

func (c *demoCallback) OnRangingStopped(peer rangingapi.PeerID) {
	fmt.Printf("[demo:%s] ranging stopped peer=%s\n", c.name, peer)
}

func (c *demoCallback) OnClosed(reason rangingapi.ClosedReason) {
	fmt.Printf("[demo:%s] session closed reason=%s\n", c.name, reason)
}
