// Package spirv loads precompiled device programs from disk.
package spirv

import (
	"os"

	"github.com/cockroachdb/errors"
)

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

var ErrNotSPIRV = errors.New("not a SPIR-V module")

// Load reads a SPIR-V file and returns its words.
func Load(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read device program %s", path)
	}

	code, err := Words(b)
	if err != nil {
		return nil, errors.Wrapf(err, "device program %s", path)
	}
	return code, nil
}

// Words converts raw module bytes to the word slice the driver expects.
func Words(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrNotSPIRV, "length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	if byteCode[0] != Magic {
		return nil, errors.Wrapf(ErrNotSPIRV, "magic 0x%08x", byteCode[0])
	}
	return byteCode, nil
}
