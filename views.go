package dieselxr

import (
	"github.com/chewxy/math32"
	lin "github.com/xlab/linmath"
)

// EyeMatrices are the view and projection matrices of one located eye.
type EyeMatrices struct {
	View       lin.Mat4x4
	Projection lin.Mat4x4
}

// EyeMatricesFor builds one EyeMatrices per located view.
func EyeMatricesFor(views []View, near, far float32) []EyeMatrices {
	out := make([]EyeMatrices, len(views))
	for i, v := range views {
		out[i].View = ViewFromPose(v.Pose)
		out[i].Projection = ProjectionFromFov(v.Fov, near, far)
	}
	return out
}

// ProjectionFromFov builds an asymmetric perspective projection from the four
// half angles, in Vulkan clip space.
func ProjectionFromFov(fov Fov, near, far float32) lin.Mat4x4 {
	tanL := math32.Tan(fov.AngleLeft)
	tanR := math32.Tan(fov.AngleRight)
	tanU := math32.Tan(fov.AngleUp)
	tanD := math32.Tan(fov.AngleDown)
	w := tanR - tanL
	h := tanU - tanD

	// GL style first, column major.
	var gl lin.Mat4x4
	gl[0][0] = 2 / w
	gl[1][1] = 2 / h
	gl[2][0] = (tanR + tanL) / w
	gl[2][1] = (tanU + tanD) / h
	gl[2][2] = -(far + near) / (far - near)
	gl[2][3] = -1
	gl[3][2] = -2 * far * near / (far - near)

	var m lin.Mat4x4
	VulkanProjectionMat(&m, &gl)
	return m
}

// VulkanProjectionMat converts an OpenGL style projection matrix to Vulkan style.
// Vulkan has a top left clip space with a [0, 1] depth range instead of [-1, 1].
func VulkanProjectionMat(m *lin.Mat4x4, proj *lin.Mat4x4) {
	var clip lin.Mat4x4
	clip.Identity()
	// Flip Y, X = -1, Y = -1 is top left in Vulkan.
	clip[1][1] = -1.0
	// Z depth to [0, 1].
	clip[2][2] = 0.5
	clip[3][2] = 0.5
	m.Mult(&clip, proj)
}

// ViewFromPose is the inverse of the pose transform: rotate by the conjugate
// orientation after translating by the negated position.
func ViewFromPose(p Pose) lin.Mat4x4 {
	x, y, z, w := p.Orientation[0], p.Orientation[1], p.Orientation[2], p.Orientation[3]

	// Column c of the transposed rotation is row c of the rotation.
	var rt lin.Mat4x4
	rt.Identity()
	rt[0][0] = 1 - 2*(y*y+z*z)
	rt[0][1] = 2 * (x*y - z*w)
	rt[0][2] = 2 * (x*z + y*w)
	rt[1][0] = 2 * (x*y + z*w)
	rt[1][1] = 1 - 2*(x*x+z*z)
	rt[1][2] = 2 * (y*z - x*w)
	rt[2][0] = 2 * (x*z - y*w)
	rt[2][1] = 2 * (y*z + x*w)
	rt[2][2] = 1 - 2*(x*x+y*y)

	var t lin.Mat4x4
	t.Translate(-p.Position[0], -p.Position[1], -p.Position[2])

	var view lin.Mat4x4
	view.Mult(&rt, &t)
	return view
}
