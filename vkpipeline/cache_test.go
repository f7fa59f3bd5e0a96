package vkpipeline

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func cacheHeader(t *testing.T, headerLength uint32, version core1_0.PipelineCacheHeaderVersion, vendorID, deviceID uint32, cacheUUID uuid.UUID) []byte {
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, common.ByteOrder, headerLength))
	require.NoError(t, binary.Write(buf, common.ByteOrder, version))
	require.NoError(t, binary.Write(buf, common.ByteOrder, vendorID))
	require.NoError(t, binary.Write(buf, common.ByteOrder, deviceID))
	require.NoError(t, binary.Write(buf, common.ByteOrder, cacheUUID))
	return buf.Bytes()
}

func TestValidateCacheHeader(t *testing.T) {
	deviceUUID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	properties := &core1_0.PhysicalDeviceProperties{
		VendorID:          0x10de,
		DeviceID:          0x2204,
		PipelineCacheUUID: deviceUUID,
	}

	valid := cacheHeader(t, 32, core1_0.PipelineCacheHeaderVersionOne, 0x10de, 0x2204, deviceUUID)
	require.NoError(t, validateCacheHeader(valid, properties))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:10]},
		{name: "zero header length", data: cacheHeader(t, 0, core1_0.PipelineCacheHeaderVersionOne, 0x10de, 0x2204, deviceUUID)},
		{name: "unknown version", data: cacheHeader(t, 32, 99, 0x10de, 0x2204, deviceUUID)},
		{name: "wrong vendor", data: cacheHeader(t, 32, core1_0.PipelineCacheHeaderVersionOne, 0x1002, 0x2204, deviceUUID)},
		{name: "wrong device", data: cacheHeader(t, 32, core1_0.PipelineCacheHeaderVersionOne, 0x10de, 0x9999, deviceUUID)},
		{name: "wrong uuid", data: cacheHeader(t, 32, core1_0.PipelineCacheHeaderVersionOne, 0x10de, 0x2204, uuid.MustParse("00000000-0000-0000-0000-000000000001"))},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Error(t, validateCacheHeader(test.data, properties))
		})
	}
}
