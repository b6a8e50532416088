// Package heap implements the byte-arena value representation every
// other runtime package builds on: a single contiguous buffer of
// tag-prefixed records, a bump allocator over it, and the per-record
// primitives (gc.go) the runtime package's mark-compact collector
// uses to reclaim unreachable records.
package heap

import (
	"encoding/binary"
	"math"
)

// Tag identifies which of the twelve Value variants a record holds.
type Tag byte

const (
	TagNull Tag = iota
	TagPair
	TagBoolean
	TagInteger
	TagFloat
	TagComplex
	TagCharacter
	TagString
	TagSymbol
	TagRawPointer
	TagFunction
	TagBox
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagPair:
		return "Pair"
	case TagBoolean:
		return "Boolean"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagComplex:
		return "Complex"
	case TagCharacter:
		return "Character"
	case TagString:
		return "String"
	case TagSymbol:
		return "Symbol"
	case TagRawPointer:
		return "RawPointer"
	case TagFunction:
		return "Function"
	case TagBox:
		return "Box"
	default:
		return "Unknown"
	}
}

// recordSize gives the fixed byte length of each tag's record, header
// byte included. String's length varies by line, but its own header
// carries a field byte count that recordSize never needs: every
// record of a given tag is sized identically here because a String's
// characters are separate Character records in the arena, not part of
// the String record itself.
var recordSize = [...]int{
	TagNull:       1,
	TagPair:       9,
	TagBoolean:    2,
	TagInteger:    5,
	TagFloat:      9,
	TagComplex:    17,
	TagCharacter:  5,
	TagString:     9,
	TagSymbol:     5,
	TagRawPointer: 5,
	TagFunction:   16,
	TagBox:        5,
}

// SizeOf returns the record size in bytes for tag.
func SizeOf(tag Tag) int {
	return recordSize[tag]
}

// header packs a tag and a single mark bit into one byte: the tag
// occupies the upper seven bits, the mark bit the low bit.
func header(tag Tag) byte {
	return byte(tag) << 1
}

func headerTag(h byte) Tag {
	return Tag(h >> 1)
}

func headerMarked(h byte) bool {
	return h&1 != 0
}

func headerMark(h byte) byte {
	return h | 1
}

func headerUnmark(h byte) byte {
	return h &^ 1
}

// Ref is a byte offset into a Heap's arena identifying the start of a
// single Value record. It is only ever valid relative to the Heap
// that produced it, and it is invalidated by compaction unless it is
// one of the references the collector remaps (frame locals, the
// operand stack, immediates, persistent roots).
type Ref int32

// InvalidRef is never a legal record offset, so callers compare
// against it to mark "no record" (offset 0 always holds whatever the
// Heap's very first allocation was, so it can't double as a sentinel).
const InvalidRef Ref = -1

func putRef(buf []byte, r Ref) {
	binary.LittleEndian.PutUint32(buf, uint32(r))
}

func getRef(buf []byte) Ref {
	return Ref(binary.LittleEndian.Uint32(buf))
}

func putInt32(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}

func getInt32(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

func putUint16(buf []byte, v uint16) {
	binary.LittleEndian.PutUint16(buf, v)
}

func getUint16(buf []byte) uint16 {
	return binary.LittleEndian.Uint16(buf)
}

func putUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func getUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

func putFloat64(buf []byte, v float64) {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
}

func getFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}
