package firmware

import (
	"bytes"
	"testing"
	"time"

	"gyrosense/adxrs450"
	"gyrosense/core"
	"gyrosense/protocol"
	"gyrosense/sim"
)

type fakeButton struct {
	pressed bool
}

// Get reports the line level; the button pulls it low
func (b *fakeButton) Get() bool {
	return !b.pressed
}

type harness struct {
	gyro   *sim.Gyro
	dev    *adxrs450.Device
	clock  *core.MillisCounter
	button *fakeButton
	out    *bytes.Buffer
	loop   *Loop
	seq    uint8
}

func newHarness(t *testing.T, streamEvery uint32) *harness {
	t.Helper()

	h := &harness{
		gyro:   sim.NewGyro(),
		clock:  &core.MillisCounter{},
		button: &fakeButton{},
		out:    &bytes.Buffer{},
		seq:    protocol.MessageDest,
	}
	sleep := func(d time.Duration) {
		h.clock.Advance(uint32(d / time.Millisecond))
	}

	dev, err := adxrs450.New(h.gyro, nil, adxrs450.Config{
		Clock:             h.clock,
		Sleep:             sleep,
		CalibrationWindow: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("adxrs450.New failed: %v", err)
	}
	h.dev = dev

	h.loop = New(Config{
		Gyro:        dev,
		Clock:       h.clock,
		ResetButton: h.button,
		Output:      h.out,
		StreamEvery: streamEvery,
		Sleep:       sleep,
	})
	return h
}

// step advances the clock one sample period and runs the loop once
func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(2)
		h.loop.Step()
	}
}

// send frames a host command and queues it for the next step
func (h *harness) send(cmdID uint16, args ...uint32) {
	payload := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(payload, uint32(cmdID))
	for _, a := range args {
		protocol.EncodeVLQUint(payload, a)
	}

	block := []byte{uint8(protocol.MessageLengthMin + payload.CurPosition()), h.seq}
	block = append(block, payload.Result()...)
	crc := protocol.CRC16(block)
	block = append(block, uint8(crc>>8), uint8(crc), protocol.MessageValueSync)

	h.loop.Feed(block)
	h.seq = ((h.seq + 1) & protocol.MessageSeqMask) | protocol.MessageDest
}

type message struct {
	id   uint16
	data []byte
}

// messages drains the output and returns every non-ACK message
func (h *harness) messages(t *testing.T) []message {
	t.Helper()

	raw := h.out.Bytes()
	h.out.Reset()

	var msgs []message
	for len(raw) > 0 {
		n := int(raw[protocol.MessagePositionLen])
		if n < protocol.MessageLengthMin || n > len(raw) {
			t.Fatalf("Malformed output block: %v", raw)
		}
		payload := raw[protocol.MessageHeaderSize : n-protocol.MessageTrailerSize]
		raw = raw[n:]
		if len(payload) == 0 {
			continue
		}
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Bad message id: %v", err)
		}
		msgs = append(msgs, message{id: uint16(id), data: payload})
	}
	return msgs
}

func filter(msgs []message, id uint16) []message {
	var out []message
	for _, m := range msgs {
		if m.id == id {
			out = append(out, m)
		}
	}
	return out
}

func TestStepStreamsState(t *testing.T) {
	h := newHarness(t, 5)

	h.gyro.SetBias(80)
	h.step(10)

	states := filter(h.messages(t), protocol.MsgGyroState)
	if len(states) != 2 {
		t.Fatalf("Expected 2 state reports in 10 ticks, got %d", len(states))
	}

	var last protocol.GyroState
	if err := last.Decode(&states[1].data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if last.RateMilli != 1000 {
		t.Errorf("Expected 1000 m°/s, got %d", last.RateMilli)
	}
	// 0.08 for the ramp, then 9 full steps of 0.16 raw units
	if last.AngleMilli != 19 {
		t.Errorf("Expected 19 m°, got %d", last.AngleMilli)
	}
	if last.Clock != h.clock.Millis() {
		t.Errorf("Expected clock %d, got %d", h.clock.Millis(), last.Clock)
	}
	if h.loop.Ticks() != 10 {
		t.Errorf("Expected 10 ticks, got %d", h.loop.Ticks())
	}
}

func TestResetButton(t *testing.T) {
	h := newHarness(t, 1000)

	h.gyro.SetBias(400)
	h.step(20)
	if h.dev.Angle() == 0 {
		t.Fatal("Expected angle to build up")
	}

	h.button.pressed = true
	h.step(1)
	if h.dev.Angle() != 0 {
		t.Errorf("Expected angle 0 while reset is held, got %f", h.dev.Angle())
	}

	h.button.pressed = false
	h.step(1)
	if h.dev.Angle() == 0 {
		t.Error("Expected integration to resume after release")
	}
}

func TestIdentifyCommand(t *testing.T) {
	h := newHarness(t, 1000)

	h.send(protocol.CmdIdentify)
	h.step(1)

	ids := filter(h.messages(t), protocol.MsgGyroIdentify)
	if len(ids) != 1 {
		t.Fatalf("Expected 1 identify response, got %d", len(ids))
	}

	var ident protocol.GyroIdentify
	if err := ident.Decode(&ids[0].data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ident.PartID != sim.DefaultPartID {
		t.Errorf("Expected part ID 0x%04X, got 0x%04X", sim.DefaultPartID, ident.PartID)
	}
	if ident.SerialNumber != 0x0001E240 {
		t.Errorf("Expected serial 0x0001E240, got 0x%08X", ident.SerialNumber)
	}
	if ident.Firmware != Version {
		t.Errorf("Expected firmware %q, got %q", Version, ident.Firmware)
	}
}

func TestResetCommand(t *testing.T) {
	h := newHarness(t, 1000)

	h.gyro.SetBias(400)
	h.step(5)
	h.messages(t)

	h.send(protocol.CmdReset)
	h.step(1)

	states := filter(h.messages(t), protocol.MsgGyroState)
	if len(states) != 1 {
		t.Fatalf("Expected a state report after reset, got %d", len(states))
	}
	var state protocol.GyroState
	state.Decode(&states[0].data)
	if state.AngleMilli != 0 {
		t.Errorf("Expected angle 0 after reset, got %d", state.AngleMilli)
	}
}

func TestSetStreamCommand(t *testing.T) {
	h := newHarness(t, 1)

	h.send(protocol.CmdSetStream, 0)
	h.step(1)
	h.messages(t)

	h.step(10)
	if states := filter(h.messages(t), protocol.MsgGyroState); len(states) != 0 {
		t.Errorf("Expected streaming disabled, got %d reports", len(states))
	}

	h.send(protocol.CmdSetStream, 3)
	h.step(1)
	if h.loop.StreamEvery() != 3 {
		t.Errorf("Expected stream interval 3, got %d", h.loop.StreamEvery())
	}
}

func TestCalibrateCommand(t *testing.T) {
	h := newHarness(t, 1000)

	h.gyro.SetBias(40)
	h.send(protocol.CmdCalibrate)
	h.step(1)

	cals := filter(h.messages(t), protocol.MsgGyroCalibration)
	if len(cals) != 1 {
		t.Fatalf("Expected 1 calibration report, got %d", len(cals))
	}

	var cal protocol.GyroCalibration
	if err := cal.Decode(&cals[0].data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// 10 ms window sampled every 2 ms, both ends included
	if cal.Samples != 6 {
		t.Errorf("Expected 6 calibration samples, got %d", cal.Samples)
	}
	// 5 steps of 0.002*40 averaged over 6 samples
	if cal.CenterMicro != 66667 {
		t.Errorf("Expected center 66667 µLSB, got %d", cal.CenterMicro)
	}
}

func TestDumpEventsCommand(t *testing.T) {
	h := newHarness(t, 1000)

	core.ClearEvents()
	h.gyro.DropResponses(1)
	h.step(1)
	h.messages(t)

	h.send(protocol.CmdDumpEvents)
	h.step(1)

	events := filter(h.messages(t), protocol.MsgGyroEvent)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	var evt protocol.GyroEvent
	if err := evt.Decode(&events[0].data); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if evt.Type != core.EvtStatusError {
		t.Errorf("Expected STATUS_ERR, got %s", core.EventName(uint8(evt.Type)))
	}
}

func TestDumpFullEventRing(t *testing.T) {
	h := newHarness(t, 1000)

	core.ClearEvents()
	for i := 0; i < core.EventRingSize+5; i++ {
		core.RecordEvent(core.EvtBusError, uint32(i), 0xFFFFFFFF, 0xFFFFFFFF)
	}

	h.send(protocol.CmdDumpEvents)
	h.step(1)

	events := filter(h.messages(t), protocol.MsgGyroEvent)
	if len(events) != core.EventRingSize {
		t.Errorf("Expected %d events, got %d", core.EventRingSize, len(events))
	}
}

func TestUnknownCommandIsAcked(t *testing.T) {
	h := newHarness(t, 1000)

	h.send(99)
	h.step(1)

	if h.out.Len() == 0 {
		t.Error("Expected an ACK for an unknown command")
	}
	if msgs := h.messages(t); len(msgs) != 0 {
		t.Errorf("Expected no responses, got %d", len(msgs))
	}
}

func TestErrorCountInState(t *testing.T) {
	h := newHarness(t, 1000)

	h.gyro.DropResponses(3)
	h.step(3)

	if got := h.loop.State().ErrorCount; got != 3 {
		t.Errorf("Expected 3 errors, got %d", got)
	}
}

type panickyGyro struct {
	adxrs450.Device
}

func (panickyGyro) Update() error {
	panic("bus fault")
}

func TestStepRecoversPanic(t *testing.T) {
	l := New(Config{Gyro: &panickyGyro{}, Clock: &core.MillisCounter{}})

	l.Step()
	l.Step()

	if l.Panics() != 2 {
		t.Errorf("Expected 2 recovered panics, got %d", l.Panics())
	}
}

func TestToFixed(t *testing.T) {
	testCases := []struct {
		value    float32
		scale    float64
		expected int32
	}{
		{1.25, 1000, 1250},
		{-0.0004, 1000, 0},
		{-0.0006, 1000, -1},
		{1e9, 1000, 2147483647},
		{-1e9, 1000, -2147483648},
	}

	for _, tc := range testCases {
		if got := toFixed(tc.value, tc.scale); got != tc.expected {
			t.Errorf("toFixed(%g, %g): expected %d, got %d", tc.value, tc.scale, tc.expected, got)
		}
	}
}
