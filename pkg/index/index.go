/*
Package index decodes the compiled tag index used for local autocompletion.

The compiled index is a single immutable blob produced by an external indexing
job. Records are never materialized up front; every lookup decodes the one
record it needs straight out of the shared buffer.

# Layout

All integers are little-endian.

	[ tag blocks ... ][ reference table ][ version u32 ][ referenceStart u32 ][ numTags u32 ]

The trailer occupies the last 12 bytes. The reference table starts at
referenceStart and holds numTags entries of 8 bytes each:

	nameLocation u32   offset of the tag block
	imageCount   u32   number of images carrying the tag

Entries are sorted by tag name, byte-wise ascending. A tag block is:

	nameLength u8, name [nameLength]byte, assocLength u8, assoc [assocLength]u32

Association ids point at other tags (implications, aliases) and are used to
hide suggestions related to tags the user filtered out.
*/
package index

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FormatVersion is the only trailer version this package understands.
const FormatVersion uint32 = 1

const (
	trailerSize   = 12
	referenceSize = 8
)

var (
	// ErrUnsupportedFormat is returned when the trailer version is not FormatVersion.
	ErrUnsupportedFormat = errors.New("index: unsupported format version")
	// ErrTruncated is returned when an offset points outside of the blob.
	ErrTruncated = errors.New("index: truncated blob")
	// ErrOutOfRange is returned by RecordAt for an index outside [0, RecordCount).
	ErrOutOfRange = errors.New("index: record out of range")
)

// TagID identifies a tag inside the association lists.
type TagID = uint32

// TagRecord is a decoded view of one reference table entry.
type TagRecord struct {
	Name         string
	ImageCount   uint32
	Associations []TagID
}

// CompiledIndex is a read-only typed view over a compiled index blob.
// It is safe for concurrent use since nothing is ever written after Decode.
type CompiledIndex struct {
	data           []byte
	formatVersion  uint32
	numTags        uint32
	referenceStart uint32
}

// Decode validates the trailer of blob and returns a view over it.
// The blob is not copied and must not be modified afterwards.
func Decode(blob []byte) (*CompiledIndex, error) {
	if len(blob) < trailerSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the trailer", ErrTruncated, len(blob))
	}

	end := len(blob)
	numTags := binary.LittleEndian.Uint32(blob[end-4:])
	referenceStart := binary.LittleEndian.Uint32(blob[end-8:])
	version := binary.LittleEndian.Uint32(blob[end-12:])

	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedFormat, version, FormatVersion)
	}

	tableEnd := uint64(referenceStart) + uint64(numTags)*referenceSize
	if tableEnd > uint64(end-trailerSize) {
		return nil, fmt.Errorf("%w: reference table [%d, %d) overlaps the trailer", ErrTruncated, referenceStart, tableEnd)
	}

	return &CompiledIndex{
		data:           blob,
		formatVersion:  version,
		numTags:        numTags,
		referenceStart: referenceStart,
	}, nil
}

// FormatVersion returns the trailer version of the decoded blob.
func (ci *CompiledIndex) FormatVersion() uint32 {
	return ci.formatVersion
}

// RecordCount returns the number of entries in the reference table.
func (ci *CompiledIndex) RecordCount() int {
	return int(ci.numTags)
}

// Size returns the size of the underlying blob in bytes.
func (ci *CompiledIndex) Size() int {
	return len(ci.data)
}

// RecordAt decodes the i-th record in name order.
func (ci *CompiledIndex) RecordAt(i int) (TagRecord, error) {
	location, imageCount, err := ci.reference(i)
	if err != nil {
		return TagRecord{}, err
	}

	name, assocAt, err := ci.nameAt(location)
	if err != nil {
		return TagRecord{}, err
	}

	associations, err := ci.associationsAt(assocAt)
	if err != nil {
		return TagRecord{}, fmt.Errorf("record %d (%q): %w", i, name, err)
	}

	return TagRecord{
		Name:         name,
		ImageCount:   imageCount,
		Associations: associations,
	}, nil
}

// NameAt decodes only the name of the i-th record. The binary search uses
// it to avoid decoding association lists it will never look at.
func (ci *CompiledIndex) NameAt(i int) (string, error) {
	location, _, err := ci.reference(i)
	if err != nil {
		return "", err
	}
	name, _, err := ci.nameAt(location)
	return name, err
}

func (ci *CompiledIndex) reference(i int) (location, imageCount uint32, err error) {
	if i < 0 || i >= int(ci.numTags) {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, ci.numTags)
	}
	at := int(ci.referenceStart) + i*referenceSize
	location = binary.LittleEndian.Uint32(ci.data[at:])
	imageCount = binary.LittleEndian.Uint32(ci.data[at+4:])
	return location, imageCount, nil
}

// nameAt returns the name stored at location and the offset of the
// association length byte that follows it.
func (ci *CompiledIndex) nameAt(location uint32) (string, int, error) {
	at := int(location)
	if at < 0 || at >= len(ci.data) {
		return "", 0, fmt.Errorf("%w: name location %d", ErrTruncated, location)
	}
	nameLen := int(ci.data[at])
	start := at + 1
	end := start + nameLen
	if end >= len(ci.data) {
		return "", 0, fmt.Errorf("%w: name at %d runs past the blob", ErrTruncated, location)
	}
	return string(ci.data[start:end]), end, nil
}

func (ci *CompiledIndex) associationsAt(at int) ([]TagID, error) {
	count := int(ci.data[at])
	if count == 0 {
		return nil, nil
	}
	start := at + 1
	if start+count*4 > len(ci.data) {
		return nil, fmt.Errorf("%w: %d associations at %d", ErrTruncated, count, at)
	}
	ids := make([]TagID, count)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(ci.data[start+i*4:])
	}
	return ids, nil
}
