// Package vkmem pairs Vulkan buffers and images with their backing device
// memory and hides the memory-type search behind a single Allocator. It is
// the only place in the renderer that touches raw device memory.
package vkmem

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Allocator creates device resources and runs one-shot transfer commands.
// The queue is the graphics queue; uploads happen once at startup, so a
// dedicated transfer queue is not worth the extra sharing setup.
type Allocator struct {
	Driver   core1_0.CoreDeviceDriver
	Instance core1_0.CoreInstanceDriver
	Physical core1_0.PhysicalDevice
	Pool     core1_0.CommandPool
	Queue    core1_0.Queue
}

// Buffer is a buffer handle bound to the memory that backs it. Destroying
// the pair together removes the forgotten-free bug class.
type Buffer struct {
	Handle core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int
}

// Image is an image handle bound to its backing memory.
type Image struct {
	Handle core1_0.Image
	Memory core1_0.DeviceMemory
}

// FindMemoryType returns the index of the first memory type allowed by
// typeBits that has every requested property flag.
func FindMemoryType(memProperties *core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeBits&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeBits, properties)
}

func (a *Allocator) memoryTypeIndex(typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := a.Instance.GetPhysicalDeviceMemoryProperties(a.Physical)
	return FindMemoryType(memProperties, typeBits, properties)
}

// CreateBuffer allocates a buffer and binds fresh memory with the requested
// properties.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Buffer, error) {
	handle, _, err := a.Driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return Buffer{}, errors.Wrap(err, "create buffer")
	}

	memRequirements := a.Driver.GetBufferMemoryRequirements(handle)
	memoryTypeIndex, err := a.memoryTypeIndex(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		a.Driver.DestroyBuffer(handle, nil)
		return Buffer{}, err
	}

	memory, _, err := a.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		a.Driver.DestroyBuffer(handle, nil)
		return Buffer{}, errors.Wrap(err, "allocate buffer memory")
	}

	_, err = a.Driver.BindBufferMemory(handle, memory, 0)
	if err != nil {
		a.Driver.FreeMemory(memory, nil)
		a.Driver.DestroyBuffer(handle, nil)
		return Buffer{}, err
	}

	return Buffer{Handle: handle, Memory: memory, Size: size}, nil
}

// CreateImage allocates a 2D image and binds fresh memory with the requested
// properties.
func (a *Allocator) CreateImage(width, height, mipLevels int, samples core1_0.SampleCountFlags, format core1_0.Format, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags, properties core1_0.MemoryPropertyFlags) (Image, error) {
	handle, _, err := a.Driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       samples,
	})
	if err != nil {
		return Image{}, errors.Wrap(err, "create image")
	}

	memRequirements := a.Driver.GetImageMemoryRequirements(handle)
	memoryTypeIndex, err := a.memoryTypeIndex(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		a.Driver.DestroyImage(handle, nil)
		return Image{}, err
	}

	memory, _, err := a.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		a.Driver.DestroyImage(handle, nil)
		return Image{}, errors.Wrap(err, "allocate image memory")
	}

	_, err = a.Driver.BindImageMemory(handle, memory, 0)
	if err != nil {
		a.Driver.FreeMemory(memory, nil)
		a.Driver.DestroyImage(handle, nil)
		return Image{}, err
	}

	return Image{Handle: handle, Memory: memory}, nil
}

// CreateImageView builds a 2D view over the given aspect and mip range.
func (a *Allocator) CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (core1_0.ImageView, error) {
	imageView, _, err := a.Driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return core1_0.ImageView{}, errors.Wrap(err, "create image view")
	}
	return imageView, nil
}

// WriteData serializes data into mapped device memory at the given offset.
// The memory must be host-visible.
func WriteData(driver core1_0.CoreDeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	size := binary.Size(data)

	memoryPtr, _, err := driver.MapMemory(memory, offset, size, 0)
	if err != nil {
		return err
	}
	defer driver.UnmapMemory(memory)

	dst := unsafe.Slice((*byte)(memoryPtr), size)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dst, buf.Bytes())
	return nil
}

// MapForever maps the buffer's memory for the lifetime of the buffer and
// returns the mapping as a byte slice. Used for per-frame uniform buffers
// that are rewritten every frame; the frame fence serializes CPU writes
// against GPU reads.
func (a *Allocator) MapForever(buf Buffer) ([]byte, error) {
	memoryPtr, _, err := a.Driver.MapMemory(buf.Memory, 0, buf.Size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map uniform buffer")
	}
	return unsafe.Slice((*byte)(memoryPtr), buf.Size), nil
}

// DestroyBuffer destroys the buffer and frees its memory. Mapped memory is
// implicitly unmapped by the free.
func (a *Allocator) DestroyBuffer(buf Buffer) {
	if buf.Handle.Initialized() {
		a.Driver.DestroyBuffer(buf.Handle, nil)
	}
	if buf.Memory.Initialized() {
		a.Driver.FreeMemory(buf.Memory, nil)
	}
}

// DestroyImage destroys the image and frees its memory.
func (a *Allocator) DestroyImage(img Image) {
	if img.Handle.Initialized() {
		a.Driver.DestroyImage(img.Handle, nil)
	}
	if img.Memory.Initialized() {
		a.Driver.FreeMemory(img.Memory, nil)
	}
}
