package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a sensor-side event for post-mortem analysis
type Event struct {
	Type   uint8  // Event type code
	Clock  uint32 // Millisecond clock at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtStatusError      = 1 // Response status field invalid, v1=raw frame
	EvtParityError      = 2 // Response parity mismatch (strict mode), v1=raw frame
	EvtBusError         = 3 // SPI transfer failed
	EvtCalibrationStart = 4 // v1=window ms
	EvtCalibrationDone  = 5 // v1=samples, v2=center as float32 bits
	EvtReset            = 6 // Angle zeroed
	EvtDeviceNotFound   = 7 // v1=observed part ID
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8
	eventCount    uint32

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Blocks while the writer runs; use DebugAsync from the sampling path.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking).
// Falls back to DebugPrintln when InitAsyncDebug was never called.
// Drops the message if the queue is full.
func DebugAsync(msg string) {
	if !debugEnabled {
		return
	}
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent captures an event in the ring buffer.
// Always non-blocking and allocation-free.
func RecordEvent(eventType uint8, clock, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		Clock:  clock,
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	eventCount++
}

// EventCount returns the number of events recorded since the last clear,
// including ones that have been overwritten
func EventCount() uint32 {
	return eventCount
}

// Events returns the buffered events from oldest to newest
func Events() []Event {
	events := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a short name for an event type code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtStatusError:
		return "STATUS_ERR"
	case EvtParityError:
		return "PARITY_ERR"
	case EvtBusError:
		return "BUS_ERR"
	case EvtCalibrationStart:
		return "CAL_START"
	case EvtCalibrationDone:
		return "CAL_DONE"
	case EvtReset:
		return "RESET"
	case EvtDeviceNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// DumpEvents outputs the event ring buffer through the debug writer
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENT] === Event Ring Dump ===")
	debugPrintln("[EVENT] Total events: " + Utoa(eventCount))
	for _, evt := range Events() {
		debugPrintln("[EVENT] " + EventName(evt.Type) +
			" clock=" + Utoa(evt.Clock) +
			" v1=" + Hex(evt.Value1, 8) +
			" v2=" + Hex(evt.Value2, 8))
	}
	debugPrintln("[EVENT] === End Dump ===")
}

// ClearEvents clears the event buffer
func ClearEvents() {
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
	eventCount = 0
}
