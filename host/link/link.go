// Package link is the host side of the gyro firmware connection: it sends
// commands and decodes the telemetry stream.
package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gyrosense/host/serial"
	"gyrosense/protocol"
)

// CalibrateTimeout covers the firmware's settle delay plus calibration window
const CalibrateTimeout = 10 * time.Second

var ErrNotConnected = errors.New("link: not connected")

// State is a decoded telemetry report
type State struct {
	Clock  uint32  // firmware milliseconds
	Rate   float64 // °/s
	Angle  float64 // °
	Errors uint32  // failed sensor reads since boot
}

// Calibration is the outcome of a calibration run
type Calibration struct {
	Center  float64 // raw units subtracted per sample
	Samples uint32
}

// Link is a connection to the firmware
type Link struct {
	transport *protocol.HostTransport

	states       chan State
	calibrations chan Calibration
	identities   chan protocol.GyroIdentify
	events       chan protocol.GyroEvent

	mu        sync.Mutex
	last      State
	haveState bool
	decodeErr uint32
}

// Connect opens the serial device in cfg and attaches to it
func Connect(cfg *serial.Config) (*Link, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return Attach(port), nil
}

// Attach runs the link over an already open port
func Attach(port io.ReadWriteCloser) *Link {
	l := &Link{
		transport:    protocol.NewHostTransport(port),
		states:       make(chan State, 64),
		calibrations: make(chan Calibration, 1),
		identities:   make(chan protocol.GyroIdentify, 1),
		events:       make(chan protocol.GyroEvent, 64),
	}
	l.transport.SetResponseHandler(l.handleResponse)
	return l
}

// Close shuts the link and its port
func (l *Link) Close() error {
	return l.transport.Close()
}

// States delivers telemetry reports. When the reader falls behind the
// oldest reports are dropped.
func (l *Link) States() <-chan State {
	return l.states
}

// Last returns the most recent report and whether one has arrived
func (l *Link) Last() (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.haveState
}

// DecodeErrors returns the number of messages that failed to decode
func (l *Link) DecodeErrors() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decodeErr
}

// Reset zeroes the firmware's angle
func (l *Link) Reset() error {
	return l.transport.SendCommand(protocol.CmdReset, nil)
}

// SetStream sets the state report interval in firmware ticks; 0 stops it
func (l *Link) SetStream(every uint32) error {
	return l.transport.SendCommand(protocol.CmdSetStream, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, every)
	})
}

// Calibrate reruns bias calibration. The sensor must stay still until it
// returns.
func (l *Link) Calibrate() (Calibration, error) {
	drain(l.calibrations)
	if err := l.transport.SendCommandWithTimeout(protocol.CmdCalibrate, nil, CalibrateTimeout); err != nil {
		return Calibration{}, err
	}
	select {
	case c := <-l.calibrations:
		return c, nil
	case <-time.After(time.Second):
		return Calibration{}, errors.New("link: no calibration report")
	}
}

// Identify returns the sensor's part ID, serial number and firmware version
func (l *Link) Identify(timeout time.Duration) (protocol.GyroIdentify, error) {
	drain(l.identities)
	if err := l.transport.SendCommand(protocol.CmdIdentify, nil); err != nil {
		return protocol.GyroIdentify{}, err
	}
	select {
	case id := <-l.identities:
		return id, nil
	case <-time.After(timeout):
		return protocol.GyroIdentify{}, errors.New("link: no identify response (sensor read failed?)")
	}
}

// DumpEvents fetches the firmware event ring. Events arrive as separate
// messages, so it collects until quiet passes without a new one.
func (l *Link) DumpEvents(quiet time.Duration) ([]protocol.GyroEvent, error) {
	drain(l.events)
	if err := l.transport.SendCommand(protocol.CmdDumpEvents, nil); err != nil {
		return nil, err
	}

	var events []protocol.GyroEvent
	for {
		select {
		case evt := <-l.events:
			events = append(events, evt)
		case <-time.After(quiet):
			return events, nil
		}
	}
}

func (l *Link) handleResponse(cmdID uint16, data *[]byte) error {
	var err error
	switch cmdID {
	case protocol.MsgGyroState:
		var msg protocol.GyroState
		if err = msg.Decode(data); err == nil {
			l.publishState(State{
				Clock:  msg.Clock,
				Rate:   msg.Rate(),
				Angle:  msg.Angle(),
				Errors: msg.ErrorCount,
			})
		}

	case protocol.MsgGyroCalibration:
		var msg protocol.GyroCalibration
		if err = msg.Decode(data); err == nil {
			offer(l.calibrations, Calibration{
				Center:  float64(msg.CenterMicro) / 1e6,
				Samples: msg.Samples,
			})
		}

	case protocol.MsgGyroIdentify:
		var msg protocol.GyroIdentify
		if err = msg.Decode(data); err == nil {
			offer(l.identities, msg)
		}

	case protocol.MsgGyroEvent:
		var msg protocol.GyroEvent
		if err = msg.Decode(data); err == nil {
			offer(l.events, msg)
		}

	default:
		err = protocol.ErrUnknownMessage
	}

	if err != nil {
		l.mu.Lock()
		l.decodeErr++
		l.mu.Unlock()
	}
	return err
}

func (l *Link) publishState(s State) {
	l.mu.Lock()
	l.last = s
	l.haveState = true
	l.mu.Unlock()

	offer(l.states, s)
}

// offer sends v on ch, dropping the oldest queued value when ch is full.
// Only the read goroutine sends, so the retry cannot block.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
