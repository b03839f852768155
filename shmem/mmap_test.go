//go:build unix

package shmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMappedRegionReadWrite(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rpmi-shmem-*")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(4096))

	m, err := OpenMapped(f, 4096)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Write(0, []byte("hello")))

	dst := make([]byte, 5)
	require.NoError(t, m.Read(0, dst))
	require.Equal(t, "hello", string(dst))

	require.Equal(t, uint32(4096), m.Size())
}

func TestMappedRegionOutOfRange(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rpmi-shmem-*")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(64))

	m, err := OpenMapped(f, 64)
	require.NoError(t, err)
	defer m.Close()

	err = m.Write(60, []byte("12345678"))
	require.Error(t, err)
}
