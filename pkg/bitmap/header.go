package bitmap

// Header values this codec accepts
const (
	Magic        = 0x4D42 // "BM"
	BitsPerPixel = 24
	NumPlanes    = 1
	Compression  = 0

	HeaderSize  = 54
	infoSize    = 40
	bitsPerByte = 8
)

// Header is the BITMAPFILEHEADER followed by the BITMAPINFOHEADER, read as
// one padding-free little-endian record.
type Header struct {
	Type            uint16
	Size            uint32
	Reserved1       uint16
	Reserved2       uint16
	Offset          uint32
	InfoSize        uint32
	Width           int32
	Height          int32 // positive means bottom-up rows
	Planes          uint16
	Bits            uint16
	Compression     uint32
	ImageSize       uint32
	XResolution     int32
	YResolution     int32
	ColorsUsed      uint32
	ImportantColors uint32
}

// Validate checks the fields this codec depends on, in the order magic,
// bit depth, planes, compression, then the size and layout fields.
func (h *Header) Validate() error {
	if h.Type != Magic {
		return &FormatError{Field: "signature", Got: int64(h.Type), Want: Magic}
	}
	if h.Bits != BitsPerPixel {
		return &FormatError{Field: "bit depth", Got: int64(h.Bits), Want: BitsPerPixel}
	}
	if h.Planes != NumPlanes {
		return &FormatError{Field: "planes", Got: int64(h.Planes), Want: NumPlanes}
	}
	if h.Compression != Compression {
		return &FormatError{Field: "compression", Got: int64(h.Compression), Want: Compression}
	}
	if h.Size < HeaderSize {
		return &FormatError{Field: "file size", Got: int64(h.Size), Want: HeaderSize}
	}
	if h.Offset != HeaderSize {
		return &FormatError{Field: "data offset", Got: int64(h.Offset), Want: HeaderSize}
	}
	if h.Width <= 0 {
		return &FormatError{Field: "width", Got: int64(h.Width), Want: 1}
	}
	if h.Height == 0 {
		return &FormatError{Field: "height", Got: 0, Want: 1}
	}
	want := int64(h.Width) * absHeight(h.Height) * BitsPerPixel / bitsPerByte
	if got := h.PixelSize(); got != want {
		return &FormatError{Field: "pixel size", Got: got, Want: want}
	}
	return nil
}

// PixelSize is the number of payload bytes the header declares.
func (h *Header) PixelSize() int64 {
	return int64(h.Size) - HeaderSize
}

func absHeight(h int32) int64 {
	v := int64(h)
	if v < 0 {
		return -v
	}
	return v
}

// NewHeader builds a valid 24-bit uncompressed header for the given
// dimensions. A negative height marks a top-down image.
func NewHeader(width, height int) Header {
	pixelSize := uint32(int64(width) * absHeight(int32(height)) * BitsPerPixel / bitsPerByte)
	return Header{
		Type:        Magic,
		Size:        HeaderSize + pixelSize,
		Offset:      HeaderSize,
		InfoSize:    infoSize,
		Width:       int32(width),
		Height:      int32(height),
		Planes:      NumPlanes,
		Bits:        BitsPerPixel,
		Compression: Compression,
		ImageSize:   pixelSize,
		XResolution: 2835,
		YResolution: 2835,
	}
}
