package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// FindSupportedFormat returns the first candidate whose format features
// cover the requested set under the given tiling.
func (dev *Device) FindSupportedFormat(candidates []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		props := dev.Instance.GetPhysicalDeviceFormatProperties(dev.Physical, format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("no supported format for tiling %s, featureset %s", tiling, features)
}

// DepthFormat picks the preferred depth attachment format for this device.
func (dev *Device) DepthFormat() (core1_0.Format, error) {
	return dev.FindSupportedFormat(
		[]core1_0.Format{
			core1_0.FormatD32SignedFloat,
			core1_0.FormatD32SignedFloatS8UnsignedInt,
			core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

// SupportsLinearBlit reports whether the format can be blitted with linear
// filtering under optimal tiling, which mip generation requires.
func (dev *Device) SupportsLinearBlit(format core1_0.Format) bool {
	props := dev.Instance.GetPhysicalDeviceFormatProperties(dev.Physical, format)
	return (props.OptimalTilingFeatures & core1_0.FormatFeatureSampledImageFilterLinear) != 0
}
