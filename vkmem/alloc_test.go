package vkmem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestFindMemoryType(t *testing.T) {
	memProperties := &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	}

	t.Run("first allowed type with every property wins", func(t *testing.T) {
		index, err := FindMemoryType(memProperties, 0b111, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		require.NoError(t, err)
		require.Equal(t, 2, index)
	})

	t.Run("type bits exclude otherwise matching types", func(t *testing.T) {
		index, err := FindMemoryType(memProperties, 0b001, core1_0.MemoryPropertyDeviceLocal)
		require.NoError(t, err)
		require.Equal(t, 0, index)

		_, err = FindMemoryType(memProperties, 0b110, core1_0.MemoryPropertyDeviceLocal)
		require.Error(t, err)
	})

	t.Run("no match is an error", func(t *testing.T) {
		_, err := FindMemoryType(memProperties, 0b111, core1_0.MemoryPropertyLazilyAllocated)
		require.Error(t, err)
	})
}
