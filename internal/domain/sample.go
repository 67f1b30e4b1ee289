package domain

import "time"

// Sample is one decoded frame: the raw ADC value and when it was read.
// The value is not range checked against the ADC resolution.
type Sample struct {
	Raw       int
	Timestamp time.Time
}

// VoltageReading is a Sample after calibration.
type VoltageReading struct {
	Volts     float64
	Timestamp time.Time
}
