package lib

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// The oracle delivers plaintext as little-endian uint32 values in a fixed
// order. An institution payload carries the three measurements, a category
// payload a single count.

// EncodeMeasurements packs the three measurement values in their fixed
// order: breach attempts, response time in minutes, vulnerability count.
func EncodeMeasurements(breaches, responseTime, vulns uint32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], breaches)
	binary.LittleEndian.PutUint32(buf[4:8], responseTime)
	binary.LittleEndian.PutUint32(buf[8:12], vulns)
	return buf
}

// DecodeMeasurements unpacks a payload created by EncodeMeasurements.
func DecodeMeasurements(buf []byte) (breaches, responseTime, vulns uint32, err error) {
	if len(buf) != 12 {
		return 0, 0, 0, xerrors.Errorf("measurement payload must be 12 bytes, got %d", len(buf))
	}
	return binary.LittleEndian.Uint32(buf[0:4]),
		binary.LittleEndian.Uint32(buf[4:8]),
		binary.LittleEndian.Uint32(buf[8:12]), nil
}

// EncodeValues packs any number of values, four bytes each, in order. The
// oracle uses it to build a batch payload; a three-value batch is identical
// to EncodeMeasurements, a one-value batch to EncodeCount.
func EncodeValues(values []uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

// EncodeCount packs a revealed aggregate count.
func EncodeCount(count uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, count)
	return buf
}

// DecodeCount unpacks a payload created by EncodeCount.
func DecodeCount(buf []byte) (uint32, error) {
	if len(buf) != 4 {
		return 0, xerrors.Errorf("count payload must be 4 bytes, got %d", len(buf))
	}
	return binary.LittleEndian.Uint32(buf), nil
}
