package bitmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture returns the on-disk bytes of a width x height image whose pixel
// bytes are produced by fill.
func fixture(t *testing.T, width, height int, fill func(i int) byte) []byte {
	t.Helper()
	h := NewHeader(width, height)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	for i := 0; i < int(h.PixelSize()); i++ {
		buf.WriteByte(fill(i))
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.bmp")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestHeaderIsFiftyFourBytes(t *testing.T) {
	assert.Equal(t, HeaderSize, binary.Size(Header{}))
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	data := fixture(t, 5, 3, func(i int) byte { return byte(i * 7) })
	src := writeFile(t, data)

	img, err := Decode(src)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, 3, img.BytesPerPixel)
	assert.Equal(t, 15, img.Stride())
	assert.Len(t, img.Pix, 45)

	dst := filepath.Join(t.TempDir(), "out.bmp")
	require.NoError(t, Encode(img, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecodeTopDownHeight(t *testing.T) {
	img, err := Decode(writeFile(t, fixture(t, 2, -4, func(int) byte { return 1 })))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Height)
	assert.False(t, img.BottomUp())
}

func TestDecodeRejectsHeaderFields(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(h *Header)
	}{
		{"signature", "signature", func(h *Header) { h.Type = 0x5A4D }},
		{"8 bit", "bit depth", func(h *Header) { h.Bits = 8 }},
		{"two planes", "planes", func(h *Header) { h.Planes = 2 }},
		{"compressed", "compression", func(h *Header) { h.Compression = 1 }},
		{"data offset", "data offset", func(h *Header) { h.Offset = 138 }},
		{"pixel size", "pixel size", func(h *Header) { h.Width = 3 }},
		{"tiny size", "file size", func(h *Header) { h.Size = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeader(4, 4)
			tt.mutate(&h)
			var buf bytes.Buffer
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
			buf.Write(make([]byte, 48))

			img, err := Decode(writeFile(t, buf.Bytes()))
			require.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Nil(t, img)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestDecodeShortFiles(t *testing.T) {
	data := fixture(t, 4, 4, func(int) byte { return 100 })

	t.Run("truncated header", func(t *testing.T) {
		img, err := Decode(writeFile(t, data[:HeaderSize-1]))
		require.ErrorIs(t, err, ErrTruncatedHeader)
		assert.Nil(t, img)
	})
	t.Run("empty file", func(t *testing.T) {
		_, err := Decode(writeFile(t, nil))
		require.ErrorIs(t, err, ErrTruncatedHeader)
	})
	t.Run("truncated pixels", func(t *testing.T) {
		img, err := Decode(writeFile(t, data[:len(data)-1]))
		require.ErrorIs(t, err, ErrTruncatedPixelData)
		assert.Nil(t, img)
	})
	t.Run("trailing byte", func(t *testing.T) {
		img, err := Decode(writeFile(t, append(append([]byte{}, data...), 0)))
		require.ErrorIs(t, err, ErrTrailingData)
		assert.Nil(t, img)
	})
}

func TestDecodeMissingFile(t *testing.T) {
	_, err := Decode(filepath.Join(t.TempDir(), "nope.bmp"))
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecoderLimit(t *testing.T) {
	d := &Decoder{MaxPixelBytes: 16}
	_, err := d.Decode(writeFile(t, fixture(t, 4, 4, func(int) byte { return 0 })))
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestEncodeCannotCreate(t *testing.T) {
	img, err := New(1, 1, []byte{1, 2, 3})
	require.NoError(t, err)
	err = Encode(img, filepath.Join(t.TempDir(), "missing", "out.bmp"))
	require.ErrorIs(t, err, ErrCannotCreateFile)
}

type shortWriter struct{ limit int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		return w.limit, errors.New("disk full")
	}
	w.limit -= len(p)
	return len(p), nil
}

func TestEncodeShortWrite(t *testing.T) {
	img, err := New(2, 2, make([]byte, 12))
	require.NoError(t, err)

	err = EncodeTo(&shortWriter{limit: 10}, img)
	require.ErrorIs(t, err, ErrWriteError)

	err = EncodeTo(&shortWriter{limit: HeaderSize + 5}, img)
	require.ErrorIs(t, err, ErrWriteError)
}

func TestNewRejectsWrongPayload(t *testing.T) {
	_, err := New(2, 2, make([]byte, 11))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestToRGBAFlipsBottomUp(t *testing.T) {
	// two rows of one pixel: bottom row blue, top row red (BGR on disk)
	img, err := New(1, 2, []byte{255, 0, 0, 0, 0, 255})
	require.NoError(t, err)

	rgba := img.ToRGBA()
	assert.Equal(t, uint8(255), rgba.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), rgba.RGBAAt(0, 1).B)
	assert.Equal(t, uint8(255), rgba.RGBAAt(0, 1).A)
}

func TestCloneIsIndependent(t *testing.T) {
	img, err := New(1, 1, []byte{1, 2, 3})
	require.NoError(t, err)
	c := img.Clone()
	c.Pix[0] = 9
	assert.Equal(t, byte(1), img.Pix[0])
}
