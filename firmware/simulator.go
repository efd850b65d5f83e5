package firmware

import (
	"net"
	"sync"
	"time"

	"gyrosense/adxrs450"
	"gyrosense/core"
	"gyrosense/sim"
)

// Simulator runs a Loop in-process against a simulated ADXRS450. The host
// talks to it through the connection returned by NewSimulator.
//
// Firmware time is a MillisCounter advanced by the loop's own sleeps. In
// realtime mode each sleep also waits on the wall clock; otherwise the
// simulation runs as fast as the host reads.
type Simulator struct {
	Gyro  *sim.Gyro
	Clock *core.MillisCounter

	loop *Loop
	conn net.Conn

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSimulator starts the firmware against gyro and returns the host end
// of the link
func NewSimulator(gyro *sim.Gyro, realtime bool) (*Simulator, net.Conn, error) {
	clock := &core.MillisCounter{}
	sleep := func(d time.Duration) {
		clock.Advance(uint32(d / time.Millisecond))
		if realtime {
			time.Sleep(d)
		} else {
			time.Sleep(20 * time.Microsecond)
		}
	}

	dev, err := adxrs450.New(gyro, nil, adxrs450.Config{Clock: clock, Sleep: sleep})
	if err != nil {
		return nil, nil, err
	}

	hostConn, fwConn := net.Pipe()

	s := &Simulator{
		Gyro:  gyro,
		Clock: clock,
		conn:  fwConn,
		stop:  make(chan struct{}),
	}
	s.loop = New(Config{
		Gyro:   dev,
		Clock:  clock,
		Output: fwConn,
		Sleep:  sleep,
	})

	s.wg.Add(2)
	go s.readLoop()
	go func() {
		defer s.wg.Done()
		s.loop.Run(s.stop)
	}()

	return s, hostConn, nil
}

func (s *Simulator) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		for data := buf[:n]; len(data) > 0; {
			written := s.loop.Feed(data)
			data = data[written:]
			if written == 0 {
				// Input full until the loop's next step
				select {
				case <-s.stop:
					return
				case <-time.After(time.Millisecond):
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// Close stops the firmware and closes its end of the link
func (s *Simulator) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
