package spirv

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func module(words ...uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestWords(t *testing.T) {
	code, err := Words(module(Magic, 0x00010000, 0xdeadbeef))
	require.NoError(t, err)
	assert.Equal(t, []uint32{Magic, 0x00010000, 0xdeadbeef}, code)
}

func TestWordsRejects(t *testing.T) {
	_, err := Words(nil)
	assert.ErrorIs(t, err, ErrNotSPIRV)

	_, err = Words([]byte{0x03, 0x02, 0x23})
	assert.ErrorIs(t, err, ErrNotSPIRV)

	_, err = Words(module(0x12345678))
	assert.ErrorIs(t, err, ErrNotSPIRV)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comp.spv")
	require.NoError(t, os.WriteFile(path, module(Magic, 1, 2), 0o644))

	code, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, code, 3)

	_, err = Load(filepath.Join(dir, "missing.spv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
