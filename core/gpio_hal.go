package core

// OutputPin is a digital output. machine.Pin satisfies it on TinyGo targets.
type OutputPin interface {
	// Set drives the pin high (true) or low (false)
	Set(high bool)
}

// InputPin is a digital input. machine.Pin satisfies it on TinyGo targets.
type InputPin interface {
	// Get reads the current pin level
	Get() bool
}
