package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gyrosense/core"
	"gyrosense/firmware"
	"gyrosense/host/link"
	"gyrosense/host/serial"
	"gyrosense/sim"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	simMode = flag.Bool("sim", false, "Run the firmware in-process against a simulated sensor")
	bias    = flag.Int("bias", 0, "Simulated sensor bias in raw units (with -sim)")
	verbose = flag.Bool("verbose", false, "Enable verbose output")
	stream  = flag.Uint("stream", 0, "State report interval in firmware ticks (0 keeps the firmware default)")
)

func main() {
	flag.Parse()

	fmt.Println("gyro-host - ADXRS450 rate gyro monitor")
	fmt.Println("======================================")
	fmt.Println()

	if *verbose {
		core.SetDebugWriter(func(s string) {
			fmt.Fprintln(os.Stderr, s)
		})
		core.SetDebugEnabled(true)
	}

	conn, cleanup, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	defer conn.Close()

	fmt.Println("Connected successfully!")

	if *stream != 0 {
		if err := conn.SetStream(uint32(*stream)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to set stream interval: %v\n", err)
		}
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "watch", "w":
			n := 0
			if len(parts) > 1 {
				n, _ = strconv.Atoi(parts[1])
			}
			watch(conn, n)

		case "reset":
			if err := conn.Reset(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println("Angle reset")

		case "calibrate", "cal":
			fmt.Println("Calibrating, keep the sensor still...")
			cal, err := conn.Calibrate()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Printf("Calibration done: center %.6f LSB/sample over %d samples\n", cal.Center, cal.Samples)

		case "id":
			id, err := conn.Identify(time.Second)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Printf("Part ID: 0x%04X  Serial: 0x%08X  Firmware: %s\n", id.PartID, id.SerialNumber, id.Firmware)

		case "stream":
			if len(parts) < 2 {
				fmt.Println("Usage: stream <ticks>")
				continue
			}
			every, err := strconv.ParseUint(parts[1], 10, 32)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid interval %q\n", parts[1])
				continue
			}
			if err := conn.SetStream(uint32(every)); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "events":
			events, err := conn.DumpEvents(200 * time.Millisecond)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Printf("%d events:\n", len(events))
			for _, evt := range events {
				fmt.Printf("  %-10s clock=%-10d v1=0x%08X v2=0x%08X\n",
					core.EventName(uint8(evt.Type)), evt.Clock, evt.Value1, evt.Value2)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", parts[0])
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// connect opens the serial link, or starts the simulated firmware
func connect() (*link.Link, func(), error) {
	if *simMode {
		fmt.Println("Starting simulated firmware (calibrating for 5 s)...")
		g := sim.NewGyro()
		s, conn, err := firmware.NewSimulator(g, true)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start simulator: %w", err)
		}
		g.SetBias(int16(*bias))
		return link.Attach(conn), func() { s.Close() }, nil
	}

	fmt.Printf("Connecting to %s...\n", *device)
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	conn, err := link.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, func() {}, nil
}

// watch prints state reports until n have arrived (n <= 0: until Ctrl-C)
func watch(conn *link.Link, n int) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	timeout := 2 * time.Second
	for count := 0; n <= 0 || count < n; count++ {
		select {
		case s := <-conn.States():
			fmt.Printf("Gyro Rate: %.2f°/s | Gyro Angle: %.2f°", s.Rate, s.Angle)
			if s.Errors > 0 {
				fmt.Printf(" | read errors: %d", s.Errors)
			}
			fmt.Println()
		case <-interrupt:
			fmt.Println()
			return
		case <-time.After(timeout):
			fmt.Fprintln(os.Stderr, "No state reports (is streaming disabled? try 'stream 50')")
			return
		}
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  watch [n]      - Print rate and angle reports (n reports, or until Ctrl-C)")
	fmt.Println("  reset          - Zero the angle")
	fmt.Println("  calibrate      - Rerun bias calibration (keep the sensor still)")
	fmt.Println("  id             - Show part ID, serial number and firmware version")
	fmt.Println("  stream <n>     - Report every n firmware ticks (0 stops reports)")
	fmt.Println("  events         - Dump the firmware event ring")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
