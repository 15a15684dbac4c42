package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// capabilityFixture is the YAML shape rangingctl select reads a capability
// descriptor from; it mirrors rangingapi.CapabilityDescriptor field for
// field so a fixture author never has to touch Go code to try a scenario.
type capabilityFixture struct {
	Supported []string `yaml:"supported"`
	UWB       struct {
		Channels        []int `yaml:"channels"`
		PreambleIndices []int `yaml:"preamble_indices"`
		ConfigIDs       []int `yaml:"config_ids"`
		SlotDurationsMS []int `yaml:"slot_durations_ms"`
		IntervalMinMS   int   `yaml:"interval_min_ms"`
		IntervalMaxMS   int   `yaml:"interval_max_ms"`
		LocalAddress    uint64 `yaml:"local_address"`
	} `yaml:"uwb"`
	CS struct {
		SecurityLevels []string `yaml:"security_levels"`
		IntervalMinMS  int      `yaml:"interval_min_ms"`
		IntervalMaxMS  int      `yaml:"interval_max_ms"`
	} `yaml:"cs"`
	RTT struct {
		ServiceNames    []string `yaml:"service_names"`
		MatchFilters    []string `yaml:"match_filters"`
		MaxBandwidthMHz int      `yaml:"max_bandwidth_mhz"`
		RxChains        int      `yaml:"rx_chains"`
		IntervalMinMS   int      `yaml:"interval_min_ms"`
		IntervalMaxMS   int      `yaml:"interval_max_ms"`
	} `yaml:"rtt"`
	RSSI struct {
		BluetoothAddress string `yaml:"bluetooth_address"`
		IntervalMinMS    int    `yaml:"interval_min_ms"`
		IntervalMaxMS    int    `yaml:"interval_max_ms"`
	} `yaml:"rssi"`
}

// preferenceFixture is the YAML shape for the caller's rangingapi.PeerPreference
// slice fed into the selector, minus the peer id (the fixture is single-peer).
type preferenceFixture struct {
	ExcludedTechnologies []string `yaml:"excluded_technologies"`
	IntervalMinMS        int      `yaml:"interval_min_ms"`
	IntervalMaxMS        int      `yaml:"interval_max_ms"`
	RequestSecureCS      bool     `yaml:"request_secure_cs"`
	RequestAoA           bool     `yaml:"request_aoa"`
}

// selectFixture is the top-level rangingctl select input document.
type selectFixture struct {
	Local      capabilityFixture `yaml:"local"`
	Peer       capabilityFixture `yaml:"peer"`
	Preference preferenceFixture `yaml:"preference"`
}

func selectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Run the configuration selector offline against a capability fixture",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read fixture: %w", err)
			}

			var fx selectFixture
			if err := yaml.Unmarshal(raw, &fx); err != nil {
				return fmt.Errorf("parse fixture: %w", err)
			}

			local := fx.Local.toDescriptor()
			peer := fx.Peer.toDescriptor()
			pref := fx.Preference.toPeerPreference()

			selector := engine.New(local)
			selections, err := selector.Select([]rangingapi.CapabilityDescriptor{peer}, pref)
			if err != nil {
				fmt.Printf("rejected: %v\n", err)
				return nil
			}

			for _, sel := range selections {
				fmt.Printf("%-5s local=%+v\n", sel.Technology, describeParams(sel.LocalParams))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a YAML capability fixture")
	return cmd
}

func describeParams(p rangingapi.TechnologyParams) string {
	switch p.Technology {
	case rangingapi.TechnologyUWB:
		if p.UWB != nil {
			return fmt.Sprintf("channel=%d preamble=%d config_id=%d slot_ms=%d rate=%s", p.UWB.Channel, p.UWB.Preamble, p.UWB.ConfigID, p.UWB.SlotMS, p.UWB.UpdateRate)
		}
	case rangingapi.TechnologyCS:
		if p.CS != nil {
			return fmt.Sprintf("security=%d rate=%s", p.CS.Security, p.CS.UpdateRate)
		}
	case rangingapi.TechnologyRTT:
		if p.RTT != nil {
			return fmt.Sprintf("service=%s filter=%s bandwidth_mhz=%d", p.RTT.ServiceName, p.RTT.MatchFilter, p.RTT.BandwidthMHz)
		}
	case rangingapi.TechnologyRSSI:
		if p.RSSI != nil {
			return fmt.Sprintf("address=%s", p.RSSI.BluetoothAddress)
		}
	}
	return "<none>"
}

func (f capabilityFixture) toDescriptor() rangingapi.CapabilityDescriptor {
	supported := make(map[rangingapi.Technology]bool, len(f.Supported))
	for _, s := range f.Supported {
		supported[parseTechnology(s)] = true
	}
	return rangingapi.CapabilityDescriptor{
		Supported: supported,
		UWB: rangingapi.UWBCapability{
			Channels:        f.UWB.Channels,
			PreambleIndices: f.UWB.PreambleIndices,
			ConfigIDs:       f.UWB.ConfigIDs,
			SlotDurationsMS: f.UWB.SlotDurationsMS,
			IntervalRange:   rangingapi.IntervalRange{MinMS: f.UWB.IntervalMinMS, MaxMS: f.UWB.IntervalMaxMS},
			LocalAddress:    f.UWB.LocalAddress,
		},
		CS: rangingapi.CSCapability{
			SecurityLevels: parseSecurityLevels(f.CS.SecurityLevels),
			IntervalRange:  rangingapi.IntervalRange{MinMS: f.CS.IntervalMinMS, MaxMS: f.CS.IntervalMaxMS},
		},
		RTT: rangingapi.RTTCapability{
			ServiceNames:    f.RTT.ServiceNames,
			MatchFilters:    f.RTT.MatchFilters,
			MaxBandwidthMHz: f.RTT.MaxBandwidthMHz,
			RxChains:        f.RTT.RxChains,
			IntervalRange:   rangingapi.IntervalRange{MinMS: f.RTT.IntervalMinMS, MaxMS: f.RTT.IntervalMaxMS},
		},
		RSSI: rangingapi.RSSICapability{
			BluetoothAddress: f.RSSI.BluetoothAddress,
			IntervalRange:    rangingapi.IntervalRange{MinMS: f.RSSI.IntervalMinMS, MaxMS: f.RSSI.IntervalMaxMS},
		},
	}
}

func (p preferenceFixture) toPeerPreference() rangingapi.PeerPreference {
	excluded := make(map[rangingapi.Technology]bool, len(p.ExcludedTechnologies))
	for _, s := range p.ExcludedTechnologies {
		excluded[parseTechnology(s)] = true
	}
	return rangingapi.PeerPreference{
		PeerID:               rangingapi.NewPeerID(),
		UseOOB:               true,
		ExcludedTechnologies: excluded,
		RequestedInterval:    rangingapi.IntervalRange{MinMS: p.IntervalMinMS, MaxMS: p.IntervalMaxMS},
		RequestSecureCS:      p.RequestSecureCS,
		RequestAoA:           p.RequestAoA,
	}
}

func parseTechnology(s string) rangingapi.Technology {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UWB":
		return rangingapi.TechnologyUWB
	case "CS":
		return rangingapi.TechnologyCS
	case "RTT":
		return rangingapi.TechnologyRTT
	case "RSSI":
		return rangingapi.TechnologyRSSI
	default:
		return rangingapi.Technology(255)
	}
}

func parseSecurityLevels(ss []string) []rangingapi.CSSecurityLevel {
	out := make([]rangingapi.CSSecurityLevel, 0, len(ss))
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "secure":
			out = append(out, rangingapi.CSSecuritySecure)
		default:
			out = append(out, rangingapi.CSSecurityBasic)
		}
	}
	return out
}
