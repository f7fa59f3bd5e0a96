// Package vkdevice owns the bottom of the resource-dependency graph: the
// Vulkan instance, the presentation surface, physical-device selection, and
// the logical device with its graphics and presentation queues. Everything
// else in the renderer is created against a *Device and must be destroyed
// before Destroy is called.
package vkdevice

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// ErrNoCapableDevice is returned by New when no enumerated physical device
// satisfies every suitability predicate.
var ErrNoCapableDevice = errors.New("no physical device supports graphics, presentation, and the required features")

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Options controls instance and device creation.
type Options struct {
	AppName string
	// Validation requests the Khronos validation layer and a debug
	// messenger. If the layer is not installed the renderer runs without
	// it; this is never fatal.
	Validation bool
}

// Device bundles the instance-lifetime and device-lifetime handles. The
// surface outlives the swapchain but not the window; the device driver is
// the handle every later package records and submits through.
type Device struct {
	window *sdl.Window

	Global   core1_0.GlobalDriver
	Instance core1_0.CoreInstanceDriver
	Driver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	wantDebug      bool

	SurfaceExtension khr_surface.ExtensionDriver
	Surface          khr_surface.Surface

	Physical   core1_0.PhysicalDevice
	Properties *core1_0.PhysicalDeviceProperties

	GraphicsFamily int
	PresentFamily  int
	GraphicsQueue  core1_0.Queue
	PresentQueue   core1_0.Queue

	// MaxSamples is the highest sample count usable for both color and
	// depth framebuffer attachments on the selected device.
	MaxSamples core1_0.SampleCountFlags
}

type queueFamilyIndices struct {
	Graphics *int
	Present  *int
}

func (i *queueFamilyIndices) complete() bool {
	return i.Graphics != nil && i.Present != nil
}

// New selects the first suitable physical device in enumeration order and
// builds a logical device against it. The global driver must have been
// loaded from the window's instance proc addr before calling.
func New(window *sdl.Window, global core1_0.GlobalDriver, opts Options) (*Device, error) {
	dev := &Device{
		window:     window,
		Global:     global,
		MaxSamples: core1_0.Samples1,
	}

	err := dev.createInstance(opts)
	if err != nil {
		return nil, err
	}

	dev.setupDebugMessenger()

	err = dev.createSurface()
	if err != nil {
		dev.Destroy()
		return nil, err
	}

	err = dev.pickPhysicalDevice()
	if err != nil {
		dev.Destroy()
		return nil, err
	}

	err = dev.createLogicalDevice()
	if err != nil {
		dev.Destroy()
		return nil, err
	}

	return dev, nil
}

func (dev *Device) createInstance(opts Options) error {
	appName := opts.AppName
	if appName == "" {
		appName = "meshview"
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := dev.window.VulkanGetInstanceExtensions()
	extensions, _, err := dev.Global.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("instance does not support sdl-required extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := dev.Global.AvailableLayers()
		if err != nil {
			return err
		}

		validationAvailable := true
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				validationAvailable = false
			}
		}

		_, debugExtAvailable := extensions[ext_debug_utils.ExtensionName]

		// A missing validation layer is a recoverable condition: warn and
		// run without it rather than refusing to start.
		if validationAvailable && debugExtAvailable {
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayers...)
			instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
			instanceOptions.Next = debugMessengerOptions()
		} else {
			log.Printf("validation requested but %s is not installed, continuing without it", validationLayers[0])
			opts.Validation = false
		}
	}

	dev.Instance, _, err = dev.Global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	dev.wantDebug = opts.Validation
	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (dev *Device) setupDebugMessenger() {
	if !dev.wantDebug {
		return
	}

	var err error
	dev.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(dev.Instance)
	dev.debugMessenger, _, err = dev.debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerOptions())
	if err != nil {
		log.Printf("could not create debug messenger, continuing without it: %v", err)
	}
}

func (dev *Device) createSurface() error {
	dev.SurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(dev.Instance)
	surface, err := vkng_sdl2.CreateSurface(dev.Instance.Instance(), dev.SurfaceExtension, dev.window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	dev.Surface = surface
	return nil
}

func (dev *Device) pickPhysicalDevice() error {
	physicalDevices, _, err := dev.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	// First device passing every predicate wins; there is no scoring.
	for _, device := range physicalDevices {
		if dev.suitable(device) {
			dev.Physical = device
			dev.Properties, err = dev.Instance.GetPhysicalDeviceProperties(device)
			if err != nil {
				return err
			}
			dev.MaxSamples = maxUsableSampleCount(dev.Properties)
			return nil
		}
	}

	return ErrNoCapableDevice
}

func (dev *Device) suitable(device core1_0.PhysicalDevice) bool {
	indices, err := dev.findQueueFamilies(device)
	if err != nil || !indices.complete() {
		return false
	}

	if !dev.supportsDeviceExtensions(device) {
		return false
	}

	formats, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(dev.Surface, device)
	if err != nil || len(formats) == 0 {
		return false
	}

	presentModes, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(dev.Surface, device)
	if err != nil || len(presentModes) == 0 {
		return false
	}

	features := dev.Instance.GetPhysicalDeviceFeatures(device)
	return features.SamplerAnisotropy
}

func (dev *Device) supportsDeviceExtensions(device core1_0.PhysicalDevice) bool {
	extensions, _, err := dev.Instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, ok := extensions[extension]; !ok {
			return false
		}
	}

	return true
}

func (dev *Device) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := dev.Instance.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.Graphics = new(int)
			*indices.Graphics = queueFamilyIdx
		}

		supported, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfaceSupport(dev.Surface, device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}

		if supported {
			indices.Present = new(int)
			*indices.Present = queueFamilyIdx
		}

		if indices.complete() {
			break
		}
	}

	return indices, nil
}

func (dev *Device) createLogicalDevice() error {
	indices, err := dev.findQueueFamilies(dev.Physical)
	if err != nil {
		return err
	}

	uniqueQueueFamilies := []int{*indices.Graphics}
	if uniqueQueueFamilies[0] != *indices.Present {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *indices.Present)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Keeps the renderer working under vulkan portability (MoltenVK etc).
	extensions, _, err := dev.Instance.EnumerateDeviceExtensionProperties(dev.Physical)
	if err != nil {
		return err
	}

	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	dev.Driver, _, err = dev.Instance.CreateDevice(dev.Physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	dev.GraphicsFamily = *indices.Graphics
	dev.PresentFamily = *indices.Present
	dev.GraphicsQueue = dev.Driver.GetQueue(dev.GraphicsFamily, 0)
	dev.PresentQueue = dev.Driver.GetQueue(dev.PresentFamily, 0)
	return nil
}

func maxUsableSampleCount(properties *core1_0.PhysicalDeviceProperties) core1_0.SampleCountFlags {
	counts := properties.Limits.FramebufferColorSampleCounts & properties.Limits.FramebufferDepthSampleCounts

	ordered := []core1_0.SampleCountFlags{
		core1_0.Samples64,
		core1_0.Samples32,
		core1_0.Samples16,
		core1_0.Samples8,
		core1_0.Samples4,
		core1_0.Samples2,
	}
	for _, count := range ordered {
		if (counts & count) != 0 {
			return count
		}
	}
	return core1_0.Samples1
}

// WaitIdle blocks until the device has finished all submitted work. Used at
// shutdown and around swapchain recreation, never in the steady-state frame
// path.
func (dev *Device) WaitIdle() error {
	if dev.Driver == nil {
		return nil
	}
	_, err := dev.Driver.DeviceWaitIdle()
	return err
}

// Destroy tears down in reverse creation order: device, debug messenger,
// surface, instance. The caller must have destroyed every resource created
// against the device first.
func (dev *Device) Destroy() {
	if dev.Driver != nil {
		dev.Driver.DestroyDevice(nil)
		dev.Driver = nil
	}

	if dev.debugMessenger.Initialized() {
		dev.debugDriver.DestroyDebugUtilsMessenger(dev.debugMessenger, nil)
		dev.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if dev.Surface.Initialized() {
		dev.SurfaceExtension.DestroySurface(dev.Surface, nil)
		dev.Surface = khr_surface.Surface{}
	}

	if dev.Instance != nil {
		dev.Instance.DestroyInstance(nil)
		dev.Instance = nil
	}
}
