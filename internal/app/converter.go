package app

import (
	"fmt"
	"strconv"
)

// DefaultOffset is the calibration offset subtracted from every reading.
const DefaultOffset = 2.0

// Calibration holds the conversion constants for one connection.
type Calibration struct {
	VRef       float64
	Resolution int
	Offset     float64
}

// DefaultCalibration returns the reference calibration: 4.0 V over 4095 counts
// minus 2.0 V.
func DefaultCalibration() Calibration {
	return Calibration{VRef: 4.0, Resolution: 4095, Offset: DefaultOffset}
}

// Validate checks that the calibration can be used for conversion.
func (c Calibration) Validate() error {
	if c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", c.Resolution)
	}
	if c.VRef <= 0 {
		return fmt.Errorf("v_ref must be positive, got %g", c.VRef)
	}
	return nil
}

// Convert maps a raw ADC value to volts.
func (c Calibration) Convert(raw int) float64 {
	return Convert(raw, c.VRef, c.Resolution, c.Offset)
}

// Convert computes vRef*raw/resolution - offset. Values outside the ADC range
// are converted as-is.
func Convert(raw int, vRef float64, resolution int, offset float64) float64 {
	return vRef*float64(raw)/float64(resolution) - offset
}

// appendVolts appends v formatted with precision decimals. A negative value
// that rounds to zero is written without its sign.
func appendVolts(dst []byte, v float64, precision int) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, v, 'f', precision, 64)
	if dst[start] == '-' && isZero(dst[start+1:]) {
		copy(dst[start:], dst[start+1:])
		dst = dst[:len(dst)-1]
	}
	return dst
}

// FormatVolts formats v the way records are written to the log.
func FormatVolts(v float64, precision int) string {
	return string(appendVolts(nil, v, precision))
}

func isZero(digits []byte) bool {
	for _, b := range digits {
		if b != '0' && b != '.' {
			return false
		}
	}
	return true
}
