package mapper

// PixelFormat specifies the requested layout of pixel data.
type PixelFormat uint32

// Pixel formats.
const (
	// PixelFormatRGBA8888 is 8-bit RGBA.
	PixelFormatRGBA8888 PixelFormat = iota + 1

	// PixelFormatRGBX8888 is 8-bit RGB with an ignored alpha byte.
	PixelFormatRGBX8888

	// PixelFormatRGB888 is packed 8-bit RGB.
	PixelFormatRGB888

	// PixelFormatRGB565 is 16-bit RGB.
	PixelFormatRGB565

	// PixelFormatBGRA8888 is 8-bit BGRA.
	PixelFormatBGRA8888

	// PixelFormatBlob is a one-dimensional untyped byte buffer. Width
	// carries the byte count and Height must be 1.
	PixelFormatBlob
)

// BytesPerPixel returns the per-pixel storage of the format, or 0 for an
// unknown format. Blob counts one byte per "pixel".
func (f PixelFormat) BytesPerPixel() uint32 {
	switch f {
	case PixelFormatRGBA8888, PixelFormatRGBX8888, PixelFormatBGRA8888:
		return 4
	case PixelFormatRGB888:
		return 3
	case PixelFormatRGB565:
		return 2
	case PixelFormatBlob:
		return 1
	default:
		return 0
	}
}

// Usage is a bitmask of intended buffer uses.
type Usage uint64

// Usage flags.
const (
	// UsageCPURead indicates the CPU will read the buffer.
	UsageCPURead Usage = 1 << 0

	// UsageCPUWrite indicates the CPU will write the buffer.
	UsageCPUWrite Usage = 1 << 1

	// UsageGPUTexture indicates the buffer will be sampled by the GPU.
	UsageGPUTexture Usage = 1 << 2

	// UsageGPURenderTarget indicates the GPU will render into the buffer.
	UsageGPURenderTarget Usage = 1 << 3

	// UsageDisplay indicates the buffer will be scanned out to a display.
	UsageDisplay Usage = 1 << 4

	// UsageVideoEncoder indicates a video encoder will consume the buffer.
	UsageVideoEncoder Usage = 1 << 5

	// UsageVideoDecoder indicates a video decoder will produce into the buffer.
	UsageVideoDecoder Usage = 1 << 6
)

const (
	usageCPUMask   = UsageCPURead | UsageCPUWrite
	usageKnownMask = usageCPUMask | UsageGPUTexture | UsageGPURenderTarget |
		UsageDisplay | UsageVideoEncoder | UsageVideoDecoder
)

// DescriptorInfo describes a buffer request. It is immutable once handed
// to CreateDescriptor.
type DescriptorInfo struct {
	// Name is a debug label; it never crosses the process boundary.
	Name string
	// Width and Height span the pixel grid. Rows may be padded beyond
	// Width by the allocator's stride convention.
	Width  uint32
	Height uint32
	// LayerCount is at least 1. This implementation does not support
	// layered buffers.
	LayerCount uint32
	// Format is the requested pixel format.
	Format PixelFormat
	// Usage declares every intended use of the buffer.
	Usage Usage
	// ReservedSize is the byte size of the auxiliary shared region
	// attached to the buffer at allocation time.
	ReservedSize uint64
}

// Rect is an access region in pixels. The zero value denotes the entire
// buffer.
type Rect struct {
	Left   int32
	Top    int32
	Width  int32
	Height int32
}

// IsZero reports whether r is the whole-buffer marker.
func (r Rect) IsZero() bool {
	return r == Rect{}
}
