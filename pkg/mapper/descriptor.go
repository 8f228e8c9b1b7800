package mapper

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Descriptor is the opaque token produced by CreateDescriptor and consumed
// exactly once by an allocator. Callers must not interpret its contents.
type Descriptor []byte

const (
	descriptorMagic   uint32 = 0x42554644 // "BUFD"
	descriptorVersion uint32 = 1

	// magic, version, width, height, layerCount, format, usage(2),
	// reservedSize(2), nameLen
	descriptorFixedWords = 11
)

// CreateDescriptor validates info and encodes it into a Descriptor. It has
// no side effects beyond token creation.
func (m *Mapper) CreateDescriptor(info DescriptorInfo) (Descriptor, error) {
	if err := validateDescriptorInfo(info); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, descriptorFixedWords*4+len(info.Name))
	put32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	put32(descriptorMagic)
	put32(descriptorVersion)
	put32(info.Width)
	put32(info.Height)
	put32(info.LayerCount)
	put32(uint32(info.Format))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(info.Usage))
	buf = binary.LittleEndian.AppendUint64(buf, info.ReservedSize)
	put32(uint32(len(info.Name)))
	buf = append(buf, info.Name...)
	return Descriptor(buf), nil
}

func validateDescriptorInfo(info DescriptorInfo) error {
	if info.Width == 0 || info.Height == 0 {
		return fmt.Errorf("%w: zero dimension %dx%d", ErrBadValue, info.Width, info.Height)
	}
	if info.LayerCount == 0 {
		return fmt.Errorf("%w: layerCount 0", ErrBadValue)
	}
	if info.LayerCount > 1 {
		// Layered buffers are not supported here.
		return fmt.Errorf("%w: layerCount %d", ErrUnsupported, info.LayerCount)
	}
	if info.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: pixel format %d", ErrUnsupported, info.Format)
	}
	if info.Usage == 0 || info.Usage&^usageKnownMask != 0 {
		return fmt.Errorf("%w: usage %#x", ErrBadValue, uint64(info.Usage))
	}
	if info.Format == PixelFormatBlob {
		if info.Height != 1 {
			return fmt.Errorf("%w: blob buffer with height %d", ErrBadValue, info.Height)
		}
		if info.Usage&(UsageGPURenderTarget|UsageDisplay) != 0 {
			// A 1D byte buffer can never be scanned out or rendered into.
			return fmt.Errorf("%w: blob usage %#x", ErrUnsupported, uint64(info.Usage))
		}
	}
	if page := uint64(os.Getpagesize()); info.ReservedSize > page {
		return fmt.Errorf("%w: reservedSize %d exceeds page size %d", ErrUnsupported, info.ReservedSize, page)
	}
	return nil
}

// DecodeDescriptor recovers the DescriptorInfo from a token. It exists for
// allocator collaborators; other callers treat descriptors as opaque.
func DecodeDescriptor(d Descriptor) (DescriptorInfo, error) {
	if len(d) < descriptorFixedWords*4 {
		return DescriptorInfo{}, fmt.Errorf("%w: descriptor too short (%d bytes)", ErrBadValue, len(d))
	}
	get32 := func(off int) uint32 { return binary.LittleEndian.Uint32(d[off:]) }
	if get32(0) != descriptorMagic {
		return DescriptorInfo{}, fmt.Errorf("%w: descriptor magic %#x", ErrBadValue, get32(0))
	}
	if get32(4) != descriptorVersion {
		return DescriptorInfo{}, fmt.Errorf("%w: descriptor version %d", ErrBadValue, get32(4))
	}
	info := DescriptorInfo{
		Width:        get32(8),
		Height:       get32(12),
		LayerCount:   get32(16),
		Format:       PixelFormat(get32(20)),
		Usage:        Usage(binary.LittleEndian.Uint64(d[24:])),
		ReservedSize: binary.LittleEndian.Uint64(d[32:]),
	}
	nameLen := int(get32(40))
	if len(d) != descriptorFixedWords*4+nameLen {
		return DescriptorInfo{}, fmt.Errorf("%w: descriptor name length %d", ErrBadValue, nameLen)
	}
	info.Name = string(d[descriptorFixedWords*4:])
	return info, nil
}
