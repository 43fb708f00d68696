package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	blob, err := Encode([]TagRecord{
		{Name: "forest", ImageCount: 3, Associations: []TagID{7}},
		{Name: "fog", ImageCount: 1},
		{Name: "force field", ImageCount: 1, Associations: []TagID{1, 2}},
		{Name: "flower", ImageCount: 1},
	})
	require.NoError(t, err)
	return blob
}

func TestDecodeRoundTrip(t *testing.T) {
	ci, err := Decode(fixture(t))
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, ci.FormatVersion())
	require.Equal(t, 4, ci.RecordCount())

	want := []TagRecord{
		{Name: "flower", ImageCount: 1},
		{Name: "fog", ImageCount: 1},
		{Name: "force field", ImageCount: 1, Associations: []TagID{1, 2}},
		{Name: "forest", ImageCount: 3, Associations: []TagID{7}},
	}
	for i, w := range want {
		got, err := ci.RecordAt(i)
		require.NoError(t, err)
		assert.Equal(t, w, got, "record %d", i)

		name, err := ci.NameAt(i)
		require.NoError(t, err)
		assert.Equal(t, w.Name, name)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("short blob", func(t *testing.T) {
		_, err := Decode([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("wrong version", func(t *testing.T) {
		blob := fixture(t)
		binary.LittleEndian.PutUint32(blob[len(blob)-12:], 2)
		_, err := Decode(blob)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("table past trailer", func(t *testing.T) {
		blob := fixture(t)
		binary.LittleEndian.PutUint32(blob[len(blob)-4:], 1000)
		_, err := Decode(blob)
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("empty index", func(t *testing.T) {
		blob, err := Encode(nil)
		require.NoError(t, err)
		ci, err := Decode(blob)
		require.NoError(t, err)
		assert.Zero(t, ci.RecordCount())
	})
}

func TestRecordAtBounds(t *testing.T) {
	ci, err := Decode(fixture(t))
	require.NoError(t, err)

	_, err = ci.RecordAt(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = ci.RecordAt(4)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRecordAtCorruptLocation(t *testing.T) {
	blob := fixture(t)
	referenceStart := binary.LittleEndian.Uint32(blob[len(blob)-8:])
	binary.LittleEndian.PutUint32(blob[referenceStart:], uint32(len(blob)+10))

	ci, err := Decode(blob)
	require.NoError(t, err)
	_, err = ci.RecordAt(0)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncodeRejectsLongNames(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Encode([]TagRecord{{Name: string(long)}})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "compiled.bin")
	require.NoError(t, os.WriteFile(path, fixture(t), 0o644))
	ci, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, ci.RecordCount())

	wrongExt := filepath.Join(dir, "compiled.txt")
	require.NoError(t, os.WriteFile(wrongExt, fixture(t), 0o644))
	_, err = LoadFile(wrongExt)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}
