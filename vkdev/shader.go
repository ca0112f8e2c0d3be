package vkdev

import (
	"encoding/binary"
	"os"

	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
)

const spirvMagic = 0x07230203

// ReadShader loads a SPIR-V binary for stage from path and checks its header.
func ReadShader(path string, stage dieselxr.ShaderStage) (dieselxr.ShaderModule, error) {
	buffer, err := os.ReadFile(path)
	if err != nil {
		return dieselxr.ShaderModule{}, errors.Wrap(err, "read shader")
	}
	if len(buffer) < 20 || len(buffer)%4 != 0 {
		return dieselxr.ShaderModule{}, errors.Errorf("%s: not a SPIR-V module (%d bytes)", path, len(buffer))
	}
	if binary.LittleEndian.Uint32(buffer) != spirvMagic && binary.BigEndian.Uint32(buffer) != spirvMagic {
		return dieselxr.ShaderModule{}, errors.Errorf("%s: bad SPIR-V magic", path)
	}
	return dieselxr.ShaderModule{Stage: stage, Code: buffer, Entry: "main"}, nil
}
