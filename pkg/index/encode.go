package index

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Encode builds a version 1 blob out of records. The real index is compiled
// server side; this exists for fixtures and for packing local tag lists.
// Records are sorted by name before writing, the input slice is left alone.
func Encode(records []TagRecord) ([]byte, error) {
	sorted := make([]TagRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf []byte
	locations := make([]uint32, len(sorted))

	for i, r := range sorted {
		if len(r.Name) > 255 {
			return nil, fmt.Errorf("tag %q: name longer than 255 bytes", r.Name)
		}
		if len(r.Associations) > 255 {
			return nil, fmt.Errorf("tag %q: more than 255 associations", r.Name)
		}

		locations[i] = uint32(len(buf))
		buf = append(buf, byte(len(r.Name)))
		buf = append(buf, r.Name...)
		buf = append(buf, byte(len(r.Associations)))
		for _, id := range r.Associations {
			buf = binary.LittleEndian.AppendUint32(buf, id)
		}
	}

	referenceStart := uint32(len(buf))
	for i, r := range sorted {
		buf = binary.LittleEndian.AppendUint32(buf, locations[i])
		buf = binary.LittleEndian.AppendUint32(buf, r.ImageCount)
	}

	buf = binary.LittleEndian.AppendUint32(buf, FormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, referenceStart)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sorted)))

	return buf, nil
}
