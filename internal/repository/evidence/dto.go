package evidence

import (
	"encoding/binary"
	"math"
	"strconv"

	domev "github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Hash field names shared by storage and the FT index schema.
const (
	fieldContent    = "__content"
	fieldVector     = "__vector"
	fieldTitle      = "title"
	fieldLocator    = "locator"
	fieldDomain     = "domain"
	fieldMinLevel   = "min_level"
	fieldSuperseded = "superseded"
)

// buildHashFields converts an evidence item plus its vector into a flat map for HSET.
func buildHashFields(item *domev.Item, vector []float32) map[string]string {
	return map[string]string{
		fieldContent:    item.Content(),
		fieldVector:     vectorToBytes(vector),
		fieldTitle:      item.Title(),
		fieldLocator:    item.Locator(),
		fieldDomain:     item.Domain(),
		fieldMinLevel:   strconv.Itoa(item.MinLevel()),
		fieldSuperseded: "0",
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
