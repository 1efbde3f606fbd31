// Package telemetry decodes Heart Rate Measurement and Battery Level
// notification payloads into typed readings.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// hrFormatUint16 is flags bit 0 of the Heart Rate Measurement characteristic.
const hrFormatUint16 = 0x01

// HeartRateSample is one decoded heart-rate notification.
type HeartRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       uint16    `json:"bpm"`
}

// BatteryReading is the most recent battery level. The zero value is unknown.
type BatteryReading struct {
	Percent uint8 `json:"percent"`
	Known   bool  `json:"known"`
}

// NewBatteryReading returns a known reading of percent.
func NewBatteryReading(percent uint8) BatteryReading {
	return BatteryReading{Percent: percent, Known: true}
}

func (b BatteryReading) String() string {
	if !b.Known {
		return "-"
	}
	return fmt.Sprintf("%d", b.Percent)
}

// ErrShortPayload is returned when a payload is too short for the fields its flags announce.
var ErrShortPayload = errors.New("payload too short")

// DecodeError describes a malformed notification payload.
type DecodeError struct {
	Characteristic string
	Payload        []byte
	Err            error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s % x: %v", e.Characteristic, e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeHeartRate extracts the heart-rate value from a Heart Rate Measurement payload.
// Only the value format flag is interpreted; sensor contact, energy expended
// and RR-interval fields are ignored.
func DecodeHeartRate(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, &DecodeError{Characteristic: "heart rate", Payload: payload, Err: ErrShortPayload}
	}

	if payload[0]&hrFormatUint16 == 0 {
		return uint16(payload[1]), nil
	}
	if len(payload) < 3 {
		return 0, &DecodeError{Characteristic: "heart rate", Payload: payload, Err: ErrShortPayload}
	}
	return binary.LittleEndian.Uint16(payload[1:3]), nil
}

// DecodeBattery extracts the battery percentage from a Battery Level payload.
// The value is passed through unclamped.
func DecodeBattery(payload []byte) (uint8, error) {
	if len(payload) == 0 {
		return 0, &DecodeError{Characteristic: "battery level", Payload: payload, Err: ErrShortPayload}
	}
	return payload[0], nil
}
