package protocol

import (
	"bytes"
	"testing"
)

// encodeBlock frames payload the way the host does
func encodeBlock(seq uint8, payload []byte) []byte {
	block := []byte{uint8(MessageLengthMin + len(payload)), seq}
	block = append(block, payload...)
	crc := CRC16(block)
	return append(block, uint8(crc>>8), uint8(crc), MessageValueSync)
}

func encodeCommand(cmdID uint16, args ...uint32) []byte {
	out := NewScratchOutput()
	EncodeVLQUint(out, uint32(cmdID))
	for _, a := range args {
		EncodeVLQUint(out, a)
	}
	return append([]byte(nil), out.Result()...)
}

func ackBlock(seq uint8) []byte {
	return encodeBlock(seq, nil)
}

type recordedCommand struct {
	id  uint16
	arg uint32
}

func newRecordingTransport() (*Transport, *ScratchOutput, *[]recordedCommand) {
	var cmds []recordedCommand
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		rc := recordedCommand{id: cmdID}
		if cmdID == CmdSetStream {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			rc.arg = v
		}
		cmds = append(cmds, rc)
		return nil
	})
	return tr, out, &cmds
}

func TestTransportDispatchAndAck(t *testing.T) {
	tr, out, cmds := newRecordingTransport()

	input := NewSliceInputBuffer(encodeBlock(MessageDest, encodeCommand(CmdSetStream, 25)))
	tr.Receive(input)

	if input.Available() != 0 {
		t.Errorf("Expected input consumed, %d bytes left", input.Available())
	}
	if len(*cmds) != 1 || (*cmds)[0].id != CmdSetStream || (*cmds)[0].arg != 25 {
		t.Errorf("Expected set_stream 25, got %v", *cmds)
	}
	if !bytes.Equal(out.Result(), ackBlock(MessageDest+1)) {
		t.Errorf("Expected ACK for 0x11, got %v", out.Result())
	}
}

func TestTransportMultipleCommandsInBlock(t *testing.T) {
	tr, _, cmds := newRecordingTransport()

	payload := append(encodeCommand(CmdReset), encodeCommand(CmdIdentify)...)
	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest, payload)))

	if len(*cmds) != 2 || (*cmds)[0].id != CmdReset || (*cmds)[1].id != CmdIdentify {
		t.Errorf("Expected reset then identify, got %v", *cmds)
	}
}

func TestTransportPartialBlock(t *testing.T) {
	tr, out, cmds := newRecordingTransport()
	block := encodeBlock(MessageDest, encodeCommand(CmdReset))

	fifo := NewFifoBuffer(64)
	fifo.Write(block[:4])
	tr.Receive(fifo)

	if fifo.Available() != 4 {
		t.Errorf("Expected partial block kept, %d bytes left", fifo.Available())
	}
	if len(*cmds) != 0 || out.CurPosition() != 0 {
		t.Error("Expected no dispatch or ACK for partial block")
	}

	fifo.Write(block[4:])
	tr.Receive(fifo)

	if len(*cmds) != 1 {
		t.Errorf("Expected 1 command after completion, got %d", len(*cmds))
	}
	if !fifo.IsEmpty() {
		t.Errorf("Expected input consumed, %d bytes left", fifo.Available())
	}
}

func TestTransportBadCRCResync(t *testing.T) {
	tr, out, cmds := newRecordingTransport()

	bad := encodeBlock(MessageDest, encodeCommand(CmdReset))
	bad[len(bad)-2] ^= 0xFF
	good := encodeBlock(MessageDest, encodeCommand(CmdIdentify))

	tr.Receive(NewSliceInputBuffer(append(bad, good...)))

	if len(*cmds) != 1 || (*cmds)[0].id != CmdIdentify {
		t.Errorf("Expected only identify to run, got %v", *cmds)
	}
	if !bytes.HasSuffix(out.Result(), ackBlock(MessageDest+1)) {
		t.Errorf("Expected final ACK for 0x11, got %v", out.Result())
	}
}

func TestTransportOutOfSequenceNak(t *testing.T) {
	tr, out, cmds := newRecordingTransport()

	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest|2, encodeCommand(CmdReset))))

	if len(*cmds) != 0 {
		t.Errorf("Expected out-of-sequence block ignored, got %v", *cmds)
	}
	if !bytes.Equal(out.Result(), ackBlock(MessageDest)) {
		t.Errorf("Expected NAK carrying 0x10, got %v", out.Result())
	}
}

func TestTransportHostReset(t *testing.T) {
	tr, _, cmds := newRecordingTransport()
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest, encodeCommand(CmdReset))))
	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest|1, encodeCommand(CmdReset))))
	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest, encodeCommand(CmdReset))))

	if resets != 1 {
		t.Errorf("Expected 1 reset callback, got %d", resets)
	}
	if len(*cmds) != 3 {
		t.Errorf("Expected 3 commands, got %d", len(*cmds))
	}
}

func TestTransportSequenceWraps(t *testing.T) {
	tr, out, cmds := newRecordingTransport()

	for i := 0; i < 17; i++ {
		seq := uint8(MessageDest | i&MessageSeqMask)
		out.Reset()
		tr.Receive(NewSliceInputBuffer(encodeBlock(seq, encodeCommand(CmdReset))))
	}

	if len(*cmds) != 17 {
		t.Errorf("Expected 17 commands across the wrap, got %d", len(*cmds))
	}
	if !bytes.Equal(out.Result(), ackBlock(MessageDest|1)) {
		t.Errorf("Expected ACK for 0x11 after wrap, got %v", out.Result())
	}
}

func TestTransportHandlerError(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		return ErrUnknownMessage
	})

	tr.Receive(NewSliceInputBuffer(encodeBlock(MessageDest, encodeCommand(99))))

	if tr.HandlerErrors() != 1 {
		t.Errorf("Expected 1 handler error, got %d", tr.HandlerErrors())
	}
	if !bytes.Equal(out.Result(), ackBlock(MessageDest+1)) {
		t.Errorf("Expected block still ACKed, got %v", out.Result())
	}
}

func TestSendMessageFraming(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)

	state := GyroState{Clock: 123456, RateMilli: -1250, AngleMilli: 90000, ErrorCount: 3}
	tr.SendMessage(MsgGyroState, &state)

	block := out.Result()
	if int(block[MessagePositionLen]) != len(block) {
		t.Fatalf("Expected length byte %d, got %d", len(block), block[MessagePositionLen])
	}
	if block[MessagePositionSeq] != MessageDest {
		t.Errorf("Expected sequence 0x10, got 0x%02X", block[MessagePositionSeq])
	}
	if block[len(block)-1] != MessageValueSync {
		t.Errorf("Expected trailing sync byte, got 0x%02X", block[len(block)-1])
	}
	crc := uint16(block[len(block)-3])<<8 | uint16(block[len(block)-2])
	if crc != CRC16(block[:len(block)-MessageTrailerSize]) {
		t.Errorf("CRC mismatch: 0x%04X", crc)
	}

	payload := block[MessageHeaderSize : len(block)-MessageTrailerSize]
	id, err := DecodeVLQUint(&payload)
	if err != nil || uint16(id) != MsgGyroState {
		t.Fatalf("Expected gyro_state id, got %d (%v)", id, err)
	}

	var decoded GyroState
	if err := decoded.Decode(&payload); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded != state {
		t.Errorf("Expected %+v, got %+v", state, decoded)
	}
	if decoded.Rate() != -1.25 || decoded.Angle() != 90 {
		t.Errorf("Expected -1.25 deg/s and 90 deg, got %f and %f", decoded.Rate(), decoded.Angle())
	}
}
