package oob

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// techID/fromTechID map rangingapi.Technology to its wire id (§4.4); the
// enum's own iota ordering already matches {0:UWB,1:CS,2:RTT,3:RSSI} but we
// keep an explicit table so a future reordering of the enum cannot silently
// change the wire format.
var techID = map[rangingapi.Technology]uint8{
	rangingapi.TechnologyUWB:  0,
	rangingapi.TechnologyCS:   1,
	rangingapi.TechnologyRTT:  2,
	rangingapi.TechnologyRSSI: 3,
}

var idToTech = map[uint8]rangingapi.Technology{
	0: rangingapi.TechnologyUWB,
	1: rangingapi.TechnologyCS,
	2: rangingapi.TechnologyRTT,
	3: rangingapi.TechnologyRSSI,
}

// Encode serializes m into its wire representation (§4.4, §6.2). Encode and
// Decode are exact inverses for every well-formed message (§8).
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	version := m.Version
	if version == 0 {
		version = ProtocolVersion
	}
	buf.WriteByte(version)
	buf.WriteByte(byte(m.Type))

	switch m.Type {
	case CapabilityRequest:
		writeUint16(&buf, uint16(m.RequestedTechnologies))

	case CapabilityResponse:
		for _, t := range rangingapi.AllTechnologies {
			if !m.Capabilities.Supported[t] {
				continue
			}
			writeCapabilityBlock(&buf, t, m.Capabilities)
		}

	case SetConfiguration:
		writeUint16(&buf, uint16(m.ConfigTechnologies))
		writeUint16(&buf, uint16(m.StartImmediately))
		for _, t := range m.ConfigTechnologies.Slice() {
			if err := writeConfigBlock(&buf, t, m); err != nil {
				return nil, err
			}
		}

	case SetConfigurationResponse:
		if len(m.ConfigStatus) > 255 {
			return nil, fmt.Errorf("%w: too many config statuses", rangingapi.ErrOobMalformed)
		}
		buf.WriteByte(byte(len(m.ConfigStatus)))
		for _, s := range m.ConfigStatus {
			buf.WriteByte(techID[s.Technology])
			if s.OK {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}

	case StartRanging:
		buf.WriteByte(byte(m.Technologies))

	case StartRangingResponse:
		writeUint16(&buf, uint16(m.SucceededTechnologies))

	case StopRanging:
		writeUint16(&buf, uint16(m.Technologies))

	case StopRangingResponse:
		writeUint16(&buf, uint16(m.SucceededTechnologies))

	case Unknown:
		// No payload; the type byte alone is meaningful.

	default:
		return nil, fmt.Errorf("%w: unencodable message type %d", rangingapi.ErrOobMalformed, m.Type)
	}

	return buf.Bytes(), nil
}

// Decode parses a wire message. An unknown type byte yields Message{Type:
// Unknown} rather than an error (§4.4); everything else that is malformed
// returns an error wrapping rangingapi.ErrOobMalformed.
func Decode(b []byte) (Message, error) {
	r := &reader{buf: b}

	version, err := r.byte()
	if err != nil {
		return Message{}, fmt.Errorf("%w: missing header", rangingapi.ErrOobMalformed)
	}
	if version == 0 {
		return Message{}, fmt.Errorf("%w: version 0", rangingapi.ErrOobMalformed)
	}
	typeByte, err := r.byte()
	if err != nil {
		return Message{}, fmt.Errorf("%w: missing message type", rangingapi.ErrOobMalformed)
	}

	msgType := MessageType(typeByte)
	if msgType > Unknown {
		return Message{Version: version, Type: Unknown}, nil
	}

	m := Message{Version: version, Type: msgType}

	switch msgType {
	case CapabilityRequest:
		v, err := r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: capability request bitmap", rangingapi.ErrOobMalformed)
		}
		m.RequestedTechnologies = TechnologySet(v)

	case CapabilityResponse:
		m.Capabilities.Supported = make(map[rangingapi.Technology]bool)
		for !r.empty() {
			t, known, err := readCapabilityBlock(r, &m.Capabilities)
			if err != nil {
				return Message{}, err
			}
			if known {
				m.Capabilities.Supported[t] = true
			}
		}

	case SetConfiguration:
		v, err := r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: set-configuration technologies bitmap", rangingapi.ErrOobMalformed)
		}
		m.ConfigTechnologies = TechnologySet(v)
		v, err = r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: set-configuration start-immediately bitmap", rangingapi.ErrOobMalformed)
		}
		m.StartImmediately = TechnologySet(v)
		for !r.empty() {
			if err := readConfigBlock(r, &m); err != nil {
				return Message{}, err
			}
		}

	case SetConfigurationResponse:
		count, err := r.byte()
		if err != nil {
			return Message{}, fmt.Errorf("%w: set-configuration-response count", rangingapi.ErrOobMalformed)
		}
		for i := 0; i < int(count); i++ {
			id, err := r.byte()
			if err != nil {
				return Message{}, fmt.Errorf("%w: set-configuration-response entry", rangingapi.ErrOobMalformed)
			}
			okByte, err := r.byte()
			if err != nil {
				return Message{}, fmt.Errorf("%w: set-configuration-response entry", rangingapi.ErrOobMalformed)
			}
			t, known := idToTech[id]
			if !known {
				continue // unknown technology id within a status list is skipped, not fatal
			}
			m.ConfigStatus = append(m.ConfigStatus, TechStatus{Technology: t, OK: okByte != 0})
		}

	case StartRanging:
		v, err := r.byte()
		if err != nil {
			return Message{}, fmt.Errorf("%w: start-ranging bitmap", rangingapi.ErrOobMalformed)
		}
		m.Technologies = TechnologySet(v)

	case StartRangingResponse:
		v, err := r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: start-ranging-response bitmap", rangingapi.ErrOobMalformed)
		}
		m.SucceededTechnologies = TechnologySet(v)

	case StopRanging:
		v, err := r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: stop-ranging bitmap", rangingapi.ErrOobMalformed)
		}
		m.Technologies = TechnologySet(v)

	case StopRangingResponse:
		v, err := r.uint16()
		if err != nil {
			return Message{}, fmt.Errorf("%w: stop-ranging-response bitmap", rangingapi.ErrOobMalformed)
		}
		m.SucceededTechnologies = TechnologySet(v)
	}

	return m, nil
}

// --- per-technology block encoding ---

func writeCapabilityBlock(buf *bytes.Buffer, t rangingapi.Technology, c rangingapi.CapabilityDescriptor) {
	var payload bytes.Buffer
	switch t {
	case rangingapi.TechnologyUWB:
		writeByteSlice(&payload, intsToBytes(c.UWB.Channels))
		writeByteSlice(&payload, intsToBytes(c.UWB.PreambleIndices))
		writeByteSlice(&payload, intsToBytes(c.UWB.ConfigIDs))
		writeByteSlice(&payload, intsToBytes(c.UWB.SlotDurationsMS))
		writeUint16(&payload, uint16(c.UWB.IntervalRange.MinMS))
		writeUint16(&payload, uint16(c.UWB.IntervalRange.MaxMS))
		writeUint64(&payload, c.UWB.LocalAddress)
	case rangingapi.TechnologyCS:
		levels := make([]int, len(c.CS.SecurityLevels))
		for i, l := range c.CS.SecurityLevels {
			levels[i] = int(l)
		}
		writeByteSlice(&payload, intsToBytes(levels))
		writeUint16(&payload, uint16(c.CS.IntervalRange.MinMS))
		writeUint16(&payload, uint16(c.CS.IntervalRange.MaxMS))
	case rangingapi.TechnologyRTT:
		writeStringSlice(&payload, c.RTT.ServiceNames)
		writeStringSlice(&payload, c.RTT.MatchFilters)
		writeUint16(&payload, uint16(c.RTT.MaxBandwidthMHz))
		payload.WriteByte(byte(c.RTT.RxChains))
		writeUint16(&payload, uint16(c.RTT.IntervalRange.MinMS))
		writeUint16(&payload, uint16(c.RTT.IntervalRange.MaxMS))
	case rangingapi.TechnologyRSSI:
		writeString(&payload, c.RSSI.BluetoothAddress)
		writeUint16(&payload, uint16(c.RSSI.IntervalRange.MinMS))
		writeUint16(&payload, uint16(c.RSSI.IntervalRange.MaxMS))
	}

	total := payload.Len() + 2
	buf.WriteByte(techID[t])
	buf.WriteByte(byte(total))
	buf.Write(payload.Bytes())
}

func readCapabilityBlock(r *reader, c *rangingapi.CapabilityDescriptor) (rangingapi.Technology, bool, error) {
	id, err := r.byte()
	if err != nil {
		return 0, false, fmt.Errorf("%w: capability block header", rangingapi.ErrOobMalformed)
	}
	length, err := r.byte()
	if err != nil || length < 2 {
		return 0, false, fmt.Errorf("%w: capability block length", rangingapi.ErrOobMalformed)
	}
	block, err := r.take(int(length) - 2)
	if err != nil {
		return 0, false, fmt.Errorf("%w: capability block body", rangingapi.ErrOobMalformed)
	}

	t, known := idToTech[id]
	if !known {
		return 0, false, nil // unknown technology block, skipped using its advertised length
	}

	br := &reader{buf: block}
	switch t {
	case rangingapi.TechnologyUWB:
		channels, err := br.byteSliceAsInts()
		if err != nil {
			return 0, false, err
		}
		preambles, err := br.byteSliceAsInts()
		if err != nil {
			return 0, false, err
		}
		configIDs, err := br.byteSliceAsInts()
		if err != nil {
			return 0, false, err
		}
		slots, err := br.byteSliceAsInts()
		if err != nil {
			return 0, false, err
		}
		minMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		maxMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		addr, err := br.uint64()
		if err != nil {
			return 0, false, err
		}
		c.UWB = rangingapi.UWBCapability{
			Channels:        channels,
			PreambleIndices: preambles,
			ConfigIDs:       configIDs,
			SlotDurationsMS: slots,
			IntervalRange:   rangingapi.IntervalRange{MinMS: int(minMS), MaxMS: int(maxMS)},
			LocalAddress:    addr,
		}
	case rangingapi.TechnologyCS:
		levels, err := br.byteSliceAsInts()
		if err != nil {
			return 0, false, err
		}
		minMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		maxMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		secLevels := make([]rangingapi.CSSecurityLevel, len(levels))
		for i, l := range levels {
			secLevels[i] = rangingapi.CSSecurityLevel(l)
		}
		c.CS = rangingapi.CSCapability{
			SecurityLevels: secLevels,
			IntervalRange:  rangingapi.IntervalRange{MinMS: int(minMS), MaxMS: int(maxMS)},
		}
	case rangingapi.TechnologyRTT:
		names, err := br.stringSlice()
		if err != nil {
			return 0, false, err
		}
		filters, err := br.stringSlice()
		if err != nil {
			return 0, false, err
		}
		bw, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		rx, err := br.byte()
		if err != nil {
			return 0, false, err
		}
		minMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		maxMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		c.RTT = rangingapi.RTTCapability{
			ServiceNames:    names,
			MatchFilters:    filters,
			MaxBandwidthMHz: int(bw),
			RxChains:        int(rx),
			IntervalRange:   rangingapi.IntervalRange{MinMS: int(minMS), MaxMS: int(maxMS)},
		}
	case rangingapi.TechnologyRSSI:
		addr, err := br.string()
		if err != nil {
			return 0, false, err
		}
		minMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		maxMS, err := br.uint16()
		if err != nil {
			return 0, false, err
		}
		c.RSSI = rangingapi.RSSICapability{
			BluetoothAddress: addr,
			IntervalRange:    rangingapi.IntervalRange{MinMS: int(minMS), MaxMS: int(maxMS)},
		}
	}
	return t, true, nil
}

func writeConfigBlock(buf *bytes.Buffer, t rangingapi.Technology, m Message) error {
	var payload bytes.Buffer
	switch t {
	case rangingapi.TechnologyUWB:
		if m.UWBConfig == nil {
			return fmt.Errorf("%w: UWB selected but no UWB config present", rangingapi.ErrOobMalformed)
		}
		p := m.UWBConfig
		writePeerID(&payload, p.PeerID)
		payload.WriteByte(byte(p.Channel))
		payload.WriteByte(byte(p.Preamble))
		payload.WriteByte(byte(p.ConfigID))
		payload.WriteByte(byte(p.SlotMS))
		payload.WriteByte(byte(p.UpdateRate))
		writeUint32(&payload, p.SessionID)
		writeBool(&payload, p.RequestAoA)
	case rangingapi.TechnologyCS:
		if m.CSConfig == nil {
			return fmt.Errorf("%w: CS selected but no CS config present", rangingapi.ErrOobMalformed)
		}
		p := m.CSConfig
		writePeerID(&payload, p.PeerID)
		payload.WriteByte(byte(p.Security))
		payload.WriteByte(byte(p.UpdateRate))
		payload.WriteByte(p.LocationType)
		payload.WriteByte(p.SightType)
	case rangingapi.TechnologyRTT:
		if m.RTTConfig == nil {
			return fmt.Errorf("%w: RTT selected but no RTT config present", rangingapi.ErrOobMalformed)
		}
		p := m.RTTConfig
		writePeerID(&payload, p.PeerID)
		writeString(&payload, p.ServiceName)
		writeString(&payload, p.MatchFilter)
		writeUint16(&payload, uint16(p.BandwidthMHz))
		payload.WriteByte(byte(p.RxChains))
	case rangingapi.TechnologyRSSI:
		if m.RSSIConfig == nil {
			return fmt.Errorf("%w: RSSI selected but no RSSI config present", rangingapi.ErrOobMalformed)
		}
		p := m.RSSIConfig
		writePeerID(&payload, p.PeerID)
		writeString(&payload, p.BluetoothAddress)
	}

	total := payload.Len() + 2
	if total > 255 {
		return fmt.Errorf("%w: config block for %s exceeds 255 bytes", rangingapi.ErrOobMalformed, t)
	}
	buf.WriteByte(techID[t])
	buf.WriteByte(byte(total))
	buf.Write(payload.Bytes())
	return nil
}

func readConfigBlock(r *reader, m *Message) error {
	id, err := r.byte()
	if err != nil {
		return fmt.Errorf("%w: config block header", rangingapi.ErrOobMalformed)
	}
	length, err := r.byte()
	if err != nil || length < 2 {
		return fmt.Errorf("%w: config block length", rangingapi.ErrOobMalformed)
	}
	block, err := r.take(int(length) - 2)
	if err != nil {
		return fmt.Errorf("%w: config block body", rangingapi.ErrOobMalformed)
	}

	t, known := idToTech[id]
	if !known {
		return nil // unknown technology block, skipped using its advertised length
	}

	br := &reader{buf: block}
	switch t {
	case rangingapi.TechnologyUWB:
		peer, err := br.peerID()
		if err != nil {
			return err
		}
		channel, err := br.byte()
		if err != nil {
			return err
		}
		preamble, err := br.byte()
		if err != nil {
			return err
		}
		configID, err := br.byte()
		if err != nil {
			return err
		}
		slot, err := br.byte()
		if err != nil {
			return err
		}
		rate, err := br.byte()
		if err != nil {
			return err
		}
		sessionID, err := br.uint32()
		if err != nil {
			return err
		}
		aoa, err := br.boolean()
		if err != nil {
			return err
		}
		m.UWBConfig = &rangingapi.UWBParams{
			PeerID:     peer,
			Channel:    int(channel),
			Preamble:   int(preamble),
			ConfigID:   int(configID),
			SlotMS:     int(slot),
			UpdateRate: rangingapi.UpdateRate(rate),
			SessionID:  sessionID,
			RequestAoA: aoa,
		}
	case rangingapi.TechnologyCS:
		peer, err := br.peerID()
		if err != nil {
			return err
		}
		sec, err := br.byte()
		if err != nil {
			return err
		}
		rate, err := br.byte()
		if err != nil {
			return err
		}
		locType, err := br.byte()
		if err != nil {
			return err
		}
		sightType, err := br.byte()
		if err != nil {
			return err
		}
		m.CSConfig = &rangingapi.CSParams{
			PeerID:       peer,
			Security:     rangingapi.CSSecurityLevel(sec),
			UpdateRate:   rangingapi.UpdateRate(rate),
			LocationType: locType,
			SightType:    sightType,
		}
	case rangingapi.TechnologyRTT:
		peer, err := br.peerID()
		if err != nil {
			return err
		}
		svc, err := br.string()
		if err != nil {
			return err
		}
		filter, err := br.string()
		if err != nil {
			return err
		}
		bw, err := br.uint16()
		if err != nil {
			return err
		}
		rx, err := br.byte()
		if err != nil {
			return err
		}
		m.RTTConfig = &rangingapi.RTTParams{
			PeerID:       peer,
			ServiceName:  svc,
			MatchFilter:  filter,
			BandwidthMHz: int(bw),
			RxChains:     int(rx),
		}
	case rangingapi.TechnologyRSSI:
		peer, err := br.peerID()
		if err != nil {
			return err
		}
		addr, err := br.string()
		if err != nil {
			return err
		}
		m.RSSIConfig = &rangingapi.RSSIParams{PeerID: peer, BluetoothAddress: addr}
	}
	return nil
}

// --- primitive writers ---

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writePeerID(buf *bytes.Buffer, p rangingapi.PeerID) {
	u := uuid.UUID(p)
	buf.Write(u[:])
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

func writeStringSlice(buf *bytes.Buffer, ss []string) {
	buf.WriteByte(byte(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func writeByteSlice(buf *bytes.Buffer, bs []byte) {
	buf.WriteByte(byte(len(bs)))
	buf.Write(bs)
}

func intsToBytes(ints []int) []byte {
	out := make([]byte, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	return out
}

// --- reader ---

type reader struct {
	buf []byte
	pos int
}

func (r *reader) empty() bool { return r.pos >= len(r.buf) }

func (r *reader) byte() (uint8, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of message", rangingapi.ErrOobMalformed)
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: declared block length exceeds available bytes", rangingapi.ErrOobMalformed)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *reader) peerID() (rangingapi.PeerID, error) {
	b, err := r.take(16)
	if err != nil {
		return rangingapi.PeerID{}, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return rangingapi.PeerID(u), nil
}

func (r *reader) string() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) stringSlice() ([]string, error) {
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := r.string()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *reader) byteSliceAsInts() ([]int, error) {
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out, nil
}
