package dieselxr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PipelineDepth is the number of frames whose command buffers may be in flight
// before a slot is reused. Raising it needs one more command buffer and fence per
// frame and adds a frame of worst case input latency.
const PipelineDepth = 2

// ViewCount is the number of stereo views rendered through multiview, one array
// layer per eye.
const ViewCount = 2

// Infinite is the timeout used for fence and swapchain image waits.
const Infinite = time.Duration(math.MaxInt64)

// Object handles are opaque to the engine, the backend decides their dynamic type
// and type-asserts them back when they are handed in again.
type (
	Image          any
	ImageView      any
	RenderPass     any
	Pipeline       any
	PipelineLayout any
	CommandPool    any
	CommandBuffer  any
	Fence          any
	Framebuffer    any
)

// Format mirrors the VkFormat values the engine knows how to render into.
type Format uint32

const (
	FormatUndefined      Format = 0
	FormatR8G8B8A8Unorm  Format = 37
	FormatR8G8B8A8Srgb   Format = 43
	FormatB8G8R8A8Unorm  Format = 44
	FormatB8G8R8A8Srgb   Format = 50
	FormatD16Unorm       Format = 124
	FormatD32Sfloat      Format = 126
	FormatD24UnormS8Uint Format = 129
	FormatD32SfloatS8U   Format = 130
)

var formatNames = map[Format]string{
	FormatUndefined:      "UNDEFINED",
	FormatR8G8B8A8Unorm:  "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:   "R8G8B8A8_SRGB",
	FormatB8G8R8A8Unorm:  "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:   "B8G8R8A8_SRGB",
	FormatD16Unorm:       "D16_UNORM",
	FormatD32Sfloat:      "D32_SFLOAT",
	FormatD24UnormS8Uint: "D24_UNORM_S8_UINT",
	FormatD32SfloatS8U:   "D32_SFLOAT_S8_UINT",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8U:
		return true
	}
	return false
}

// ParseFormat resolves a format by its Vulkan style name, e.g. "R8G8B8A8_SRGB".
// An empty name resolves to FormatUndefined.
func ParseFormat(name string) (Format, error) {
	name = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "VK_FORMAT_"))
	if name == "" {
		return FormatUndefined, nil
	}
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format %q", name)
}

// Version is a packed Vulkan style API version.
type Version uint32

func MakeVersion(major, minor, patch uint32) Version {
	return Version(major<<22 | minor<<12 | patch)
}

func (v Version) Major() uint32 { return uint32(v) >> 22 }
func (v Version) Minor() uint32 { return (uint32(v) >> 12) & 0x3ff }
func (v Version) Patch() uint32 { return uint32(v) & 0xfff }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// ParseVersion reads "major.minor.patch". Missing trailing parts are zero.
func ParseVersion(s string) (Version, error) {
	var parts [3]uint32
	bits := [3]int{10, 10, 12}
	for i, field := range strings.SplitN(strings.TrimSpace(s), ".", 3) {
		n, err := strconv.ParseUint(field, 10, bits[i])
		if err != nil {
			return 0, fmt.Errorf("version %q: %w", s, err)
		}
		parts[i] = uint32(n)
	}
	return MakeVersion(parts[0], parts[1], parts[2]), nil
}

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Offset2D struct {
	X int32
	Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// FullViewport covers the extent with the standard [0, 1] depth range.
func FullViewport(e Extent2D) Viewport {
	return Viewport{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
}

// Color is a linear RGBA clear color.
type Color [4]float32

// Time is a runtime timestamp in nanoseconds.
type Time int64

// Pose is an orientation quaternion (x, y, z, w) and a position in meters.
type Pose struct {
	Orientation [4]float32
	Position    [3]float32
}

// IdentityPose has no rotation and sits at the origin.
var IdentityPose = Pose{Orientation: [4]float32{0, 0, 0, 1}}

// Fov holds the four half angles of a view frustum, in radians.
type Fov struct {
	AngleLeft  float32
	AngleRight float32
	AngleUp    float32
	AngleDown  float32
}

// View is one located eye.
type View struct {
	Pose Pose
	Fov  Fov
}
