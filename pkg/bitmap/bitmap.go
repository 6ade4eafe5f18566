package bitmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxPixelBytes caps the pixel buffer a Decoder will allocate.
const DefaultMaxPixelBytes = 1 << 30

// Image is a decoded 24-bit bitmap. Pix holds the payload exactly as stored
// on disk, rows included in file order.
type Image struct {
	Header        Header
	Pix           []byte
	Width         int
	Height        int
	BytesPerPixel int
}

// New wraps pix in an image with a freshly built header.
func New(width, height int, pix []byte) (*Image, error) {
	h := NewHeader(width, height)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if int64(len(pix)) != h.PixelSize() {
		return nil, &FormatError{Field: "pixel size", Got: int64(len(pix)), Want: h.PixelSize()}
	}
	return fromHeader(h, pix), nil
}

func fromHeader(h Header, pix []byte) *Image {
	return &Image{
		Header:        h,
		Pix:           pix,
		Width:         int(h.Width),
		Height:        int(absHeight(h.Height)),
		BytesPerPixel: int(h.Bits / bitsPerByte),
	}
}

// Stride is the number of bytes per row in Pix.
func (img *Image) Stride() int {
	return img.Width * img.BytesPerPixel
}

// BottomUp reports whether the first row in Pix is the bottom of the picture.
func (img *Image) BottomUp() bool {
	return img.Header.Height > 0
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	c := *img
	c.Pix = pix
	return &c
}

// Decoder reads bitmaps with a bound on the pixel buffer size.
type Decoder struct {
	MaxPixelBytes int64
}

// Decode opens path and decodes it with the default limit.
func Decode(path string) (*Image, error) {
	return (&Decoder{}).Decode(path)
}

func (d *Decoder) limit() int64 {
	if d.MaxPixelBytes <= 0 {
		return DefaultMaxPixelBytes
	}
	return d.MaxPixelBytes
}

// Decode opens path and decodes a bitmap from it. The file is closed on
// every path and no partially read image is returned.
func (d *Decoder) Decode(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
	defer f.Close()

	img, err := d.DecodeFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// DecodeFrom decodes a bitmap from r, which must hold nothing past the
// declared pixel data.
func (d *Decoder) DecodeFrom(r io.Reader) (*Image, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedHeader
		}
		return nil, fmt.Errorf("bitmap: read header: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	pixelSize := h.PixelSize()
	if pixelSize > d.limit() {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrOutOfMemory, pixelSize, d.limit())
	}
	pix := make([]byte, pixelSize)
	if n, err := io.ReadFull(r, pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes", ErrTruncatedPixelData, n, pixelSize)
		}
		return nil, fmt.Errorf("bitmap: read pixels: %w", err)
	}

	var one [1]byte
	switch _, err := io.ReadFull(r, one[:]); {
	case err == nil:
		return nil, ErrTrailingData
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("bitmap: read trailer: %w", err)
	}

	return fromHeader(h, pix), nil
}

// Encode writes the header and pixel buffer of img to path, replacing any
// existing file.
func Encode(img *Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotCreateFile, err)
	}
	if err := EncodeTo(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteError, err)
	}
	return nil
}

// EncodeTo writes the header verbatim followed by the pixel buffer.
func EncodeTo(w io.Writer, img *Image) error {
	if err := binary.Write(w, binary.LittleEndian, &img.Header); err != nil {
		return fmt.Errorf("%w: header: %w", ErrWriteError, err)
	}
	n, err := w.Write(img.Pix)
	if err != nil {
		return fmt.Errorf("%w: pixels: %w", ErrWriteError, err)
	}
	if n != len(img.Pix) {
		return fmt.Errorf("%w: pixels: wrote %d of %d bytes", ErrWriteError, n, len(img.Pix))
	}
	return nil
}
