// Package hyi implements the 78-byte frame the judge ground station (HYI)
// accepts from competing teams.
//
// Frame layout:
//
//	0-3    magic header FF FF 54 52
//	4      team id
//	5      packet counter
//	6-69   16 float32 slots, little-endian
//	70     status code
//	71     checksum (sum of bytes 4-70, mod 256)
//	72-73  trailer 0D 0A
//	74-77  reserved, zero
package hyi

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

const (
	PacketSize = 78
	FloatSlots = 16

	offsetTeamID   = 4
	offsetCounter  = 5
	offsetFloats   = 6
	offsetStatus   = 70
	offsetChecksum = 71
	offsetTrailer  = 72
	offsetReserved = 74

	// checksum covers team id through status inclusive
	checksumStart = offsetTeamID
	checksumEnd   = offsetStatus + 1
)

var (
	Header  = [4]byte{0xFF, 0xFF, 0x54, 0x52}
	Trailer = [2]byte{0x0D, 0x0A}
)

var (
	ErrSizeMismatch = errors.New("hyi: float slot count mismatch")
	ErrShortPacket  = errors.New("hyi: packet length is not 78 bytes")
	ErrBadHeader    = errors.New("hyi: bad magic header")
	ErrBadTrailer   = errors.New("hyi: bad trailer")
	ErrBadChecksum  = errors.New("hyi: checksum mismatch")
)

// Packet is a fully assembled frame ready to be written to the judge link.
type Packet [PacketSize]byte

// Bytes returns the frame as a slice backed by the packet array.
func (p *Packet) Bytes() []byte { return p[:] }

// TeamID returns the team id byte.
func (p Packet) TeamID() byte { return p[offsetTeamID] }

// Counter returns the packet counter byte.
func (p Packet) Counter() byte { return p[offsetCounter] }

// Hex returns the frame as a lowercase hex string for logging.
func (p Packet) Hex() string { return hex.EncodeToString(p[:]) }

// Frame is the decoded content of a packet.
type Frame struct {
	TeamID   byte
	Counter  byte
	Slots    [FloatSlots]float32
	Status   byte
	Checksum byte
}

func (f Frame) String() string {
	return fmt.Sprintf("team=%d counter=%d status=%d altitude=%.2f checksum=0x%02X",
		f.TeamID, f.Counter, f.Status, f.Slots[0], f.Checksum)
}

// PackFloats encodes values as little-endian IEEE-754 float32, padding with
// zeros up to expected and dropping anything beyond it. expected must be in
// 1..FloatSlots; anything else is a caller bug and returns ErrSizeMismatch.
func PackFloats(values []float32, expected int) ([]byte, error) {
	if expected <= 0 || expected > FloatSlots {
		return nil, fmt.Errorf("%w: expected %d slots, frame holds %d", ErrSizeMismatch, expected, FloatSlots)
	}
	out := make([]byte, expected*4)
	for i := 0; i < expected && i < len(values); i++ {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(values[i]))
	}
	return out, nil
}

// Checksum returns the sum of b modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// PacketChecksum computes the checksum over the covered range of p.
func PacketChecksum(p *Packet) byte {
	return Checksum(p[checksumStart:checksumEnd])
}

// EncodePacket assembles a complete frame in memory. It never fails: every
// argument is already range-limited by its type.
func EncodePacket(teamID, counter byte, slots [FloatSlots]float32, status byte) Packet {
	var p Packet
	copy(p[0:4], Header[:])
	p[offsetTeamID] = teamID
	p[offsetCounter] = counter

	// FloatSlots is always a valid count
	floats, _ := PackFloats(slots[:], FloatSlots)
	copy(p[offsetFloats:offsetStatus], floats)

	p[offsetStatus] = status
	p[offsetChecksum] = PacketChecksum(&p)
	copy(p[offsetTrailer:offsetReserved], Trailer[:])
	return p
}

// DecodePacket validates framing and checksum and returns the frame content.
func DecodePacket(b []byte) (Frame, error) {
	var f Frame
	if len(b) != PacketSize {
		return f, fmt.Errorf("%w: got %d", ErrShortPacket, len(b))
	}
	if [4]byte(b[0:4]) != Header {
		return f, fmt.Errorf("%w: % X", ErrBadHeader, b[0:4])
	}
	if [2]byte(b[offsetTrailer:offsetReserved]) != Trailer {
		return f, fmt.Errorf("%w: % X", ErrBadTrailer, b[offsetTrailer:offsetReserved])
	}
	want := Checksum(b[checksumStart:checksumEnd])
	if got := b[offsetChecksum]; got != want {
		return f, fmt.Errorf("%w: got 0x%02X want 0x%02X", ErrBadChecksum, got, want)
	}

	f.TeamID = b[offsetTeamID]
	f.Counter = b[offsetCounter]
	for i := range f.Slots {
		bits := binary.LittleEndian.Uint32(b[offsetFloats+i*4:])
		f.Slots[i] = math.Float32frombits(bits)
	}
	f.Status = b[offsetStatus]
	f.Checksum = b[offsetChecksum]
	return f, nil
}
