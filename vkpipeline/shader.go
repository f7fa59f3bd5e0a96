package vkpipeline

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// spirvWords repacks SPIR-V bytes into the little-endian uint32 words the
// shader module create call wants.
func spirvWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("shader bytecode length %d is not a positive multiple of 4", len(b))
	}

	words := make([]uint32, len(b)/4)
	for i := 0; i < len(words); i++ {
		byteIndex := i * 4
		words[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}

	return words, nil
}

// LoadShaderModule reads a SPIR-V file and wraps it in a shader module. The
// bytecode is treated as an opaque blob; a missing or malformed file is
// fatal to pipeline construction.
func LoadShaderModule(driver core1_0.CoreDeviceDriver, path string) (core1_0.ShaderModule, error) {
	shaderBytes, err := os.ReadFile(path)
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "load shader %s", path)
	}

	words, err := spirvWords(shaderBytes)
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "load shader %s", path)
	}

	module, _, err := driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: words,
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "create shader module from %s", path)
	}

	return module, nil
}
