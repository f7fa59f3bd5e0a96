package vkpipeline

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// A serialized pipeline cache starts with a header identifying the driver
// that wrote it:
//
//	Offset  Size          Meaning
//	     0  4             header length in bytes, little-endian
//	     4  4             VkPipelineCacheHeaderVersion, little-endian
//	     8  4             vendor ID, little-endian
//	    12  4             device ID, little-endian
//	    16  VK_UUID_SIZE  pipelineCacheUUID of the device
//
// A cache written by a different driver or device must not be fed back in.
func validateCacheHeader(data []byte, properties *core1_0.PhysicalDeviceProperties) error {
	var headerLength, vendorID, deviceID uint32
	var headerVersion core1_0.PipelineCacheHeaderVersion
	var cacheUUID uuid.UUID

	reader := bytes.NewReader(data)

	err := binary.Read(reader, common.ByteOrder, &headerLength)
	if err != nil {
		return errors.Wrap(err, "truncated cache header")
	}
	if headerLength == 0 {
		return errors.New("zero header length")
	}

	err = binary.Read(reader, common.ByteOrder, &headerVersion)
	if err != nil {
		return errors.Wrap(err, "truncated cache header")
	}
	if headerVersion != core1_0.PipelineCacheHeaderVersionOne {
		return errors.Newf("unsupported cache header version %#x", headerVersion)
	}

	err = binary.Read(reader, common.ByteOrder, &vendorID)
	if err != nil {
		return errors.Wrap(err, "truncated cache header")
	}
	if vendorID != properties.VendorID {
		return errors.Newf("vendor ID mismatch: cache %#x, device %#x", vendorID, properties.VendorID)
	}

	err = binary.Read(reader, common.ByteOrder, &deviceID)
	if err != nil {
		return errors.Wrap(err, "truncated cache header")
	}
	if deviceID != properties.DeviceID {
		return errors.Newf("device ID mismatch: cache %#x, device %#x", deviceID, properties.DeviceID)
	}

	err = binary.Read(reader, common.ByteOrder, &cacheUUID)
	if err != nil {
		return errors.Wrap(err, "truncated cache header")
	}
	if cacheUUID != properties.PipelineCacheUUID {
		return errors.Newf("cache UUID mismatch: cache %s, device %s", cacheUUID, properties.PipelineCacheUUID)
	}

	return nil
}

// LoadCache creates a pipeline cache, seeding it from the file at path when
// the file exists and its header matches the device. Cache problems are
// never fatal: a bad or missing file just means a cold cache, and a stale
// file is removed so the next run can repopulate it.
func LoadCache(driver core1_0.CoreDeviceDriver, properties *core1_0.PhysicalDeviceProperties, path string) (core1_0.PipelineCache, error) {
	var initialData []byte

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Cold start.
		case err != nil:
			log.Printf("could not read pipeline cache %s: %v", path, err)
		default:
			err = validateCacheHeader(data, properties)
			if err != nil {
				log.Printf("discarding pipeline cache %s: %v", path, err)
				_ = os.Remove(path)
			} else {
				initialData = data
			}
		}
	}

	cache, _, err := driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if err != nil {
		return core1_0.PipelineCache{}, errors.Wrap(err, "create pipeline cache")
	}

	return cache, nil
}

// SaveCache serializes the cache back to disk. Failures are logged, not
// returned: losing the cache only costs the next startup some time.
func SaveCache(driver core1_0.CoreDeviceDriver, cache core1_0.PipelineCache, path string) {
	if path == "" || !cache.Initialized() {
		return
	}

	data, _, err := driver.GetPipelineCacheData(cache)
	if err != nil {
		log.Printf("could not read back pipeline cache: %v", err)
		return
	}

	err = os.WriteFile(path, data, 0o666)
	if err != nil {
		log.Printf("could not write pipeline cache %s: %v", path, err)
	}
}
