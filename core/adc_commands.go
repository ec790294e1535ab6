package core

import (
	"sync"

	"adcshare/protocol"
)

// Message names of the ADC command surface. They are registered in this
// order, so firmware and host derive the same message IDs.
const (
	MsgADCAcquire     = "adc_acquire"
	MsgADCAcquired    = "adc_acquired"
	MsgADCRead        = "adc_read"
	MsgADCReading     = "adc_reading"
	MsgADCRelease     = "adc_release"
	MsgADCReleased    = "adc_released"
	MsgADCStats       = "adc_stats"
	MsgADCStatsResult = "adc_stats_result"
)

// ChannelConfigWireSize is the packed size of one ChannelConfig in an
// adc_acquire channels argument: unit, channel, atten, bitwidth.
const ChannelConfigWireSize = 4

// ADCMessageIDs holds the IDs assigned to the ADC messages.
type ADCMessageIDs struct {
	Acquire     uint16
	Acquired    uint16
	Read        uint16
	Reading     uint16
	Release     uint16
	Released    uint16
	Stats       uint16
	StatsResult uint16
}

// RegisterADCMessages registers the ADC messages on r. With a nil service
// every handler is nil, which is how the host builds its copy of the
// dictionary.
func RegisterADCMessages(r *CommandRegistry, s *ADCService) ADCMessageIDs {
	var acquire, read, release, stats CommandHandler
	if s != nil {
		acquire = s.handleAcquire
		read = s.handleRead
		release = s.handleRelease
		stats = s.handleStats
	}

	ids := ADCMessageIDs{
		Acquire:     r.Register(MsgADCAcquire, "oid=%c channels=%*s", acquire),
		Acquired:    r.Register(MsgADCAcquired, "oid=%c status=%c calibrated=%u", nil),
		Read:        r.Register(MsgADCRead, "oid=%c unit=%c channel=%c", read),
		Reading:     r.Register(MsgADCReading, "oid=%c unit=%c channel=%c status=%c raw=%i mv_status=%c millivolts=%i", nil),
		Release:     r.Register(MsgADCRelease, "oid=%c", release),
		Released:    r.Register(MsgADCReleased, "oid=%c status=%c", nil),
		Stats:       r.Register(MsgADCStats, "", stats),
		StatsResult: r.Register(MsgADCStatsResult, "handles=%u units=%c refs_a=%u refs_b=%u", nil),
	}
	if s != nil {
		s.ids = ids
	}
	return ids
}

// EncodeChannelConfigs packs configs for the adc_acquire channels argument.
func EncodeChannelConfigs(configs []ChannelConfig) []byte {
	out := make([]byte, 0, len(configs)*ChannelConfigWireSize)
	for _, c := range configs {
		out = append(out, byte(c.Unit), byte(c.Channel), byte(c.Atten), byte(c.BitWidth))
	}
	return out
}

// DecodeChannelConfigs unpacks an adc_acquire channels argument. It checks
// only the packing; Manager.Acquire validates the values.
func DecodeChannelConfigs(data []byte) ([]ChannelConfig, error) {
	if len(data)%ChannelConfigWireSize != 0 {
		return nil, ErrInvalidArgument
	}
	configs := make([]ChannelConfig, 0, len(data)/ChannelConfigWireSize)
	for i := 0; i < len(data); i += ChannelConfigWireSize {
		configs = append(configs, ChannelConfig{
			Unit:     Unit(data[i]),
			Channel:  Channel(data[i+1]),
			Atten:    Atten(data[i+2]),
			BitWidth: BitWidth(data[i+3]),
		})
	}
	return configs, nil
}

// ResponseSender queues a response message, e.g. Transport.SendCommand.
type ResponseSender func(cmdID uint16, args func(output protocol.OutputBuffer))

// ADCService exposes a Manager to the host. Handles are addressed by an
// object ID chosen by the host.
type ADCService struct {
	mgr  *Manager
	send ResponseSender
	log  *Logger
	ids  ADCMessageIDs

	mu      sync.Mutex
	handles map[uint8]*Handle
}

// NewADCService creates a service over mgr. Call Register before use.
func NewADCService(mgr *Manager, send ResponseSender) *ADCService {
	return &ADCService{
		mgr:     mgr,
		send:    send,
		log:     NewLogger("adc_cmd"),
		handles: make(map[uint8]*Handle),
	}
}

// Register adds the ADC messages to r with this service's handlers.
func (s *ADCService) Register(r *CommandRegistry) ADCMessageIDs {
	return RegisterADCMessages(r, s)
}

// Reset releases every handle bound to an oid. Firmware calls it when the
// host restarts its sequence.
func (s *ADCService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for oid, h := range s.handles {
		if err := h.Release(); err != nil {
			s.log.Warn("release oid " + itoa(int(oid)) + ": " + err.Error())
		}
		delete(s.handles, oid)
	}
}

// Bound returns the number of oids bound to live handles.
func (s *ADCService) Bound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *ADCService) handleAcquire(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint8(data)
	if err != nil {
		return err
	}
	packed, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	status, mask := s.acquire(oid, packed)
	s.send(s.ids.Acquired, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(status))
		protocol.EncodeVLQUint(output, mask)
	})
	return nil
}

// acquire binds oid to a new handle and returns the status and the
// calibrated-channel bitmask.
func (s *ADCService) acquire(oid uint8, packed []byte) (Status, uint32) {
	configs, err := DecodeChannelConfigs(packed)
	if err != nil {
		s.log.Error("oid " + itoa(int(oid)) + ": malformed channel list")
		return StatusOf(err), 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, live := s.handles[oid]; live {
		s.log.Error("oid " + itoa(int(oid)) + " already bound")
		return StatusInvalidArgument, 0
	}

	h, err := s.mgr.Acquire(configs)
	if err != nil {
		return StatusOf(err), 0
	}
	s.handles[oid] = h

	var mask uint32
	for i, st := range h.Channels() {
		if st.Calibrated && i < 32 {
			mask |= 1 << uint(i)
		}
	}
	return StatusOK, mask
}

func (s *ADCService) handleRead(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint8(data)
	if err != nil {
		return err
	}
	unit, err := protocol.DecodeVLQUint8(data)
	if err != nil {
		return err
	}
	ch, err := protocol.DecodeVLQUint8(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	h := s.handles[oid]
	s.mu.Unlock()

	raw, rawErr := h.ReadRaw(Unit(unit), Channel(ch))
	mv, mvErr := 0, rawErr
	if rawErr == nil {
		mv, mvErr = s.mgr.toVoltage(h, Unit(unit), Channel(ch), raw)
	} else {
		raw = 0
	}
	if mvErr != nil {
		mv = 0
	}

	s.send(s.ids.Reading, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(unit))
		protocol.EncodeVLQUint(output, uint32(ch))
		protocol.EncodeVLQUint(output, uint32(StatusOf(rawErr)))
		protocol.EncodeVLQInt(output, int32(raw))
		protocol.EncodeVLQUint(output, uint32(StatusOf(mvErr)))
		protocol.EncodeVLQInt(output, int32(mv))
	})
	return nil
}

func (s *ADCService) handleRelease(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint8(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	h := s.handles[oid]
	delete(s.handles, oid)
	s.mu.Unlock()

	err = h.Release()
	s.send(s.ids.Released, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(StatusOf(err)))
	})
	return nil
}

func (s *ADCService) handleStats(data *[]byte) error {
	st := s.mgr.Stats()

	var units uint8
	for i, u := range st.Units {
		if u.Initialized {
			units |= 1 << uint(i)
		}
	}
	s.send(s.ids.StatsResult, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(st.Handles))
		protocol.EncodeVLQUint(output, uint32(units))
		protocol.EncodeVLQUint(output, uint32(st.Unit(UnitA).Refs))
		protocol.EncodeVLQUint(output, uint32(st.Unit(UnitB).Refs))
	})
	return nil
}
