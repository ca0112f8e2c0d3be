package vkdev

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytes as host order words. len(data) must be a
// multiple of 4.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	words := make([]uint32, len(data)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*4), data)
	return words
}

// handle type-asserts an opaque engine handle back to its backend type. A
// handle of another type yields the zero value, which Vulkan treats as null.
func handle[T any](h any) T {
	v, _ := h.(T)
	return v
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
