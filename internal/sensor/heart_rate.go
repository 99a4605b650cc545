// Package sensor turns heart-rate strap notifications into timestamped samples.
package sensor

import (
	"errors"
	"fmt"
	"time"
)

// Heart Rate Service and Measurement characteristic UUIDs
const (
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
)

// ErrShortPayload is returned when a measurement is shorter than its flags require.
var ErrShortPayload = errors.New("heart rate measurement too short")

// Sample is one heart-rate reading.
type Sample struct {
	BPM int
	At  time.Time
}

// DecodeHeartRateMeasurement parses a Heart Rate Measurement characteristic value.
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
func DecodeHeartRateMeasurement(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(buf))
	}

	flags := buf[0]
	// Bit 0: 0 = UINT8, 1 = UINT16
	if flags&0x01 != 0 {
		if len(buf) < 3 {
			return 0, fmt.Errorf("%w: UINT16 value in %d bytes", ErrShortPayload, len(buf))
		}
		return int(uint16(buf[1]) | uint16(buf[2])<<8), nil
	}
	return int(buf[1]), nil
}

// EncodeHeartRateMeasurement builds a minimal measurement, using UINT16 only when needed.
func EncodeHeartRateMeasurement(bpm int) []byte {
	if bpm < 0 {
		bpm = 0
	}
	if bpm > 0xff {
		if bpm > 0xffff {
			bpm = 0xffff
		}
		return []byte{0x01, byte(bpm), byte(bpm >> 8)}
	}
	return []byte{0x00, byte(bpm)}
}
