// Package telemetry holds the decoded rocket sample and the rules that turn
// a line from the flight computer into one.
package telemetry

import (
	"fmt"

	"github.com/humbaba/groundstation/internal/hyi"
)

// Field names used by the flight computer firmware. They are the wire
// contract with the rocket and must not be translated.
const (
	FieldAltitude    = "irtifa"
	FieldGPSAltitude = "gps_irtifa"
	FieldLatitude    = "enlem"
	FieldLongitude   = "boylam"
	FieldAccelX      = "ivme_x"
	FieldAccelY      = "ivme_y"
	FieldAccelZ      = "ivme_z"
	FieldGyroX       = "jiroskop_x"
	FieldGyroY       = "jiroskop_y"
	FieldGyroZ       = "jiroskop_z"
	FieldAngle       = "aci"
	FieldStatus      = "durum"
)

// FloatFields lists every numeric field in the order they are documented.
var FloatFields = []string{
	FieldAltitude, FieldGPSAltitude, FieldLatitude, FieldLongitude,
	FieldAccelX, FieldAccelY, FieldAccelZ,
	FieldGyroX, FieldGyroY, FieldGyroZ,
	FieldAngle,
}

// Record is one decoded telemetry sample. It is a plain value; copies are
// independent and nothing mutates a Record after construction.
type Record struct {
	Altitude    float64 `json:"irtifa"`
	GPSAltitude float64 `json:"gps_irtifa"`
	Latitude    float64 `json:"enlem"`
	Longitude   float64 `json:"boylam"`
	AccelX      float64 `json:"ivme_x"`
	AccelY      float64 `json:"ivme_y"`
	AccelZ      float64 `json:"ivme_z"`
	GyroX       float64 `json:"jiroskop_x"`
	GyroY       float64 `json:"jiroskop_y"`
	GyroZ       float64 `json:"jiroskop_z"`
	Angle       float64 `json:"aci"`
	Status      int     `json:"durum"`
}

// WireValues lists the record in judge-station order. The firmware reports a
// single GPS fix, so the rocket, payload and stage positions all carry it.
//
// TODO: confirm the slot order, the shared GPS fix and the dropped angle
// against the official HYI frame document before the competition.
func (r Record) WireValues() []float32 {
	return []float32{
		float32(r.Altitude),
		// rocket
		float32(r.GPSAltitude), float32(r.Latitude), float32(r.Longitude),
		// payload
		float32(r.GPSAltitude), float32(r.Latitude), float32(r.Longitude),
		// stage
		float32(r.GPSAltitude), float32(r.Latitude), float32(r.Longitude),
		float32(r.GyroX), float32(r.GyroY), float32(r.GyroZ),
		float32(r.AccelX), float32(r.AccelY), float32(r.AccelZ),
		float32(r.Angle),
	}
}

// Slots fits WireValues into the frame's sixteen float slots. Missing values
// are zero and values past the last slot are dropped, so the angle (the
// seventeenth value) does not reach the judge frame.
func (r Record) Slots() [hyi.FloatSlots]float32 {
	var s [hyi.FloatSlots]float32
	copy(s[:], r.WireValues())
	return s
}

// StatusByte returns the status code as carried on the wire (mod 256).
func (r Record) StatusByte() byte {
	return byte(r.Status & 0xFF)
}

// Packet encodes the record for the judge station.
func (r Record) Packet(teamID, counter byte) hyi.Packet {
	return hyi.EncodePacket(teamID, counter, r.Slots(), r.StatusByte())
}

// Fields returns the record keyed by firmware field names.
func (r Record) Fields() map[string]any {
	return map[string]any{
		FieldAltitude:    r.Altitude,
		FieldGPSAltitude: r.GPSAltitude,
		FieldLatitude:    r.Latitude,
		FieldLongitude:   r.Longitude,
		FieldAccelX:      r.AccelX,
		FieldAccelY:      r.AccelY,
		FieldAccelZ:      r.AccelZ,
		FieldGyroX:       r.GyroX,
		FieldGyroY:       r.GyroY,
		FieldGyroZ:       r.GyroZ,
		FieldAngle:       r.Angle,
		FieldStatus:      r.Status,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("alt=%.2f gps_alt=%.2f lat=%.6f lon=%.6f accel=(%.2f,%.2f,%.2f) gyro=(%.2f,%.2f,%.2f) angle=%.1f status=%d",
		r.Altitude, r.GPSAltitude, r.Latitude, r.Longitude,
		r.AccelX, r.AccelY, r.AccelZ,
		r.GyroX, r.GyroY, r.GyroZ,
		r.Angle, r.Status)
}
