package metadata

// Standard tokens. The allocation-fixed group (BufferID through
// ReservedRegionSize) is answered from the buffer's descriptor and is
// never settable; Dataspace and BlendMode are the dynamic standard tokens.
var (
	BufferID             = Type{StandardNamespace, 1}
	Name                 = Type{StandardNamespace, 2}
	Width                = Type{StandardNamespace, 3}
	Height               = Type{StandardNamespace, 4}
	LayerCount           = Type{StandardNamespace, 5}
	PixelFormatRequested = Type{StandardNamespace, 6}
	Usage                = Type{StandardNamespace, 7}
	AllocationSize       = Type{StandardNamespace, 8}
	Stride               = Type{StandardNamespace, 9}
	ReservedRegionSize   = Type{StandardNamespace, 10}
	Dataspace            = Type{StandardNamespace, 11}
	BlendMode            = Type{StandardNamespace, 12}
)

// Dataspace values.
const (
	DataspaceUnknown uint32 = iota
	DataspaceSRGB
	DataspaceSRGBLinear
	DataspaceBT709
	DataspaceBT2020
)

// Blend modes.
const (
	BlendModeInvalid uint32 = iota
	BlendModeNone
	BlendModePremultiplied
	BlendModeCoverage
)

func fixedEntry(name string) Entry {
	return Entry{Name: name, Gettable: true}
}

func dynamicU32(name string, def uint32, max uint32) Entry {
	return Entry{
		Name:     name,
		Gettable: true,
		Settable: true,
		Default:  EncodeU32(def),
		Validate: func(value []byte) error {
			v, err := DecodeU32(value)
			if err != nil {
				return err
			}
			if v > max {
				return errOutOfRange
			}
			return nil
		},
	}
}

type rangeError struct{}

func (rangeError) Error() string { return "metadata: value out of range" }

var errOutOfRange = rangeError{}

func init() {
	Default.MustRegister(BufferID, fixedEntry("BufferId"))
	Default.MustRegister(Name, fixedEntry("Name"))
	Default.MustRegister(Width, fixedEntry("Width"))
	Default.MustRegister(Height, fixedEntry("Height"))
	Default.MustRegister(LayerCount, fixedEntry("LayerCount"))
	Default.MustRegister(PixelFormatRequested, fixedEntry("PixelFormatRequested"))
	Default.MustRegister(Usage, fixedEntry("Usage"))
	Default.MustRegister(AllocationSize, fixedEntry("AllocationSize"))
	Default.MustRegister(Stride, fixedEntry("Stride"))
	Default.MustRegister(ReservedRegionSize, fixedEntry("ReservedRegionSize"))
	Default.MustRegister(Dataspace, dynamicU32("Dataspace", DataspaceUnknown, DataspaceBT2020))
	Default.MustRegister(BlendMode, dynamicU32("BlendMode", BlendModeInvalid, BlendModeCoverage))
}
