package vkpipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpirvWordsLittleEndian(t *testing.T) {
	words, err := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, []uint32{0x07230203, 0x00010000}, words)
}

func TestSpirvWordsRejectsBadLengths(t *testing.T) {
	_, err := spirvWords(nil)
	require.Error(t, err)

	_, err = spirvWords([]byte{0x03, 0x02, 0x23})
	require.Error(t, err)
}
