package vkdev

import (
	"runtime"
	"unsafe"

	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	portabilityEnumeration = "VK_KHR_portability_enumeration"
	debugReport            = "VK_EXT_debug_report"
)

// InstanceConfig selects what the Vulkan instance is created with.
type InstanceConfig struct {
	AppName    string
	AppVersion dieselxr.Version
	APIVersion dieselxr.Version
	// Extensions are required instance extensions, typically those the VR
	// runtime asks for.
	Extensions []string
	// Layers are enabled when present.
	Layers []string
	// Debug registers a debug report callback that forwards to the engine logger.
	Debug bool
	// Selector, usually the VR runtime, picks the physical device. Without one
	// or when it returns nil the first discrete GPU with a graphics queue wins.
	Selector dieselxr.DeviceSelector
}

// Instance is a Vulkan instance bound to one physical device. It implements
// dieselxr.Backend.
type Instance struct {
	instance      vk.Instance
	gpu           vk.PhysicalDevice
	apiVersion    dieselxr.Version
	layers        []string
	debugCallback vk.DebugReportCallback

	gpuProperties    vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties
}

var _ dieselxr.Backend = (*Instance)(nil)

// NewInstance creates the instance and selects the first physical device with a
// graphics queue, preferring discrete GPUs.
func NewInstance(cfg InstanceConfig) (*Instance, error) {
	actual, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	var wanted []string
	if cfg.Debug {
		wanted = append(wanted, debugReport)
	}
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		wanted = append(wanted, portabilityEnumeration)
		flags = vk.InstanceCreateFlags(0x00000001) //VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT
	}
	instExt := dieselxr.NewExtensionSet(wanted, cfg.Extensions, actual)
	if ok, missing := instExt.HasRequired(); !ok {
		return nil, errors.Wrapf(dieselxr.ErrMissingExtensions, "instance extensions %v", missing)
	}
	if ok, missing := instExt.HasWanted(); !ok {
		dieselxr.Logger().Warn("vulkan: missing wanted instance extensions", "missing", missing)
	}
	extensions := instExt.GetExtensions()

	actualLayers, err := ValidationLayers()
	if err != nil {
		return nil, err
	}
	layerSet := dieselxr.NewExtensionSet(cfg.Layers, nil, actualLayers)
	if ok, missing := layerSet.HasWanted(); !ok {
		dieselxr.Logger().Warn("vulkan: missing validation layers", "missing", missing)
	}
	layers := layerSet.GetExtensions()

	p := &Instance{apiVersion: cfg.APIVersion, layers: layers}
	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(cfg.APIVersion),
			ApplicationVersion: uint32(cfg.AppVersion),
			PApplicationName:   safeString(cfg.AppName),
			PEngineName:        safeString("dieselxr"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
		Flags:                   flags,
	}, nil, &instance)
	if isError(ret) {
		return nil, newCallError("create instance", ret)
	}
	p.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "init instance")
	}
	dieselxr.Logger().Info("vulkan: instance created",
		"api", cfg.APIVersion, "extensions", len(extensions), "layers", len(layers))

	if cfg.Debug && contains(extensions, debugReport) {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &p.debugCallback)
		if isError(ret) {
			p.Destroy()
			return nil, newCallError("create debug report callback", ret)
		}
	}

	if err := p.pickGPU(cfg.Selector); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Instance) pickGPU(sel dieselxr.DeviceSelector) error {
	if sel == nil {
		return p.selectGPU()
	}
	dev, err := sel.GraphicsDevice(p.instance)
	if err != nil {
		return errors.Wrap(err, "runtime graphics device")
	}
	if dev == nil {
		return p.selectGPU()
	}
	gpu, ok := dev.(vk.PhysicalDevice)
	if !ok || gpu == nil {
		return errors.Wrapf(dieselxr.ErrGraphicsDevice, "unexpected handle %T", dev)
	}
	if !isDeviceSuitable(gpu, dieselxr.QueueGraphics) {
		return dieselxr.ErrNoCompatibleQueue
	}
	p.useGPU(gpu)
	return nil
}

func (p *Instance) selectGPU() error {
	var gpuCount uint32
	ret := vk.EnumeratePhysicalDevices(p.instance, &gpuCount, nil)
	if isError(ret) {
		return newCallError("enumerate physical devices", ret)
	}
	if gpuCount == 0 {
		return errors.New("vulkan error: no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	ret = vk.EnumeratePhysicalDevices(p.instance, &gpuCount, gpus)
	if isError(ret) {
		return newCallError("enumerate physical devices", ret)
	}

	var selected vk.PhysicalDevice
	for _, gpu := range gpus {
		if !isDeviceSuitable(gpu, dieselxr.QueueGraphics) {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		if selected == nil || props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			selected = gpu
		}
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if selected == nil {
		return dieselxr.ErrNoCompatibleQueue
	}
	p.useGPU(selected)
	return nil
}

func (p *Instance) useGPU(gpu vk.PhysicalDevice) {
	p.gpu = gpu
	vk.GetPhysicalDeviceProperties(p.gpu, &p.gpuProperties)
	p.gpuProperties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(p.gpu, &p.memoryProperties)
	p.memoryProperties.Deref()

	if v := dieselxr.Version(p.gpuProperties.ApiVersion); v < p.apiVersion {
		p.apiVersion = v
	}
	dieselxr.Logger().Info("vulkan: physical device selected",
		"name", vk.ToString(p.gpuProperties.DeviceName[:]), "api", p.apiVersion)
}

// APIVersion is the lower of the requested version and what the device offers.
func (p *Instance) APIVersion() dieselxr.Version {
	return p.apiVersion
}

func (p *Instance) QueueFamilies() ([]dieselxr.QueueFamily, error) {
	return queueFamilies(p.gpu), nil
}

func (p *Instance) DeviceExtensions() ([]string, error) {
	return DeviceExtensions(p.gpu)
}

// SupportsMultiview is always true on 1.1 devices, where the feature is core and
// mandatory. 1.0 devices need VK_KHR_multiview.
func (p *Instance) SupportsMultiview() bool {
	if p.apiVersion >= dieselxr.MakeVersion(1, 1, 0) {
		return true
	}
	exts, err := p.DeviceExtensions()
	return err == nil && contains(exts, dieselxr.MultiviewExtension)
}

func (p *Instance) Handles() dieselxr.GraphicsHandles {
	return dieselxr.GraphicsHandles{
		Instance:       p.instance,
		PhysicalDevice: p.gpu,
	}
}

// CreateDevice creates the logical device with a single queue from
// desc.QueueFamily and the multiview feature enabled when requested.
func (p *Instance) CreateDevice(desc dieselxr.DeviceDesc) (dieselxr.Device, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: desc.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(desc.Extensions)),
		PpEnabledExtensionNames: safeStrings(desc.Extensions),
		EnabledLayerCount:       uint32(len(p.layers)),
		PpEnabledLayerNames:     safeStrings(p.layers),
	}
	if desc.Multiview {
		features := vk.PhysicalDeviceMultiviewFeatures{
			SType:     vk.StructureTypePhysicalDeviceMultiviewFeatures,
			Multiview: vk.True,
		}
		ref, allocs := features.PassRef()
		defer allocs.Free()
		info.PNext = unsafe.Pointer(ref)
	}

	var device vk.Device
	ret := vk.CreateDevice(p.gpu, &info, nil, &device)
	if isError(ret) {
		return nil, newCallError("create device", ret)
	}
	var queue vk.Queue
	vk.GetDeviceQueue(device, desc.QueueFamily, 0, &queue)

	return &Device{
		handle:           device,
		gpu:              p.gpu,
		queue:            queue,
		family:           desc.QueueFamily,
		memoryProperties: p.memoryProperties,
	}, nil
}

// Destroy releases the debug callback and the instance. The logical device must
// already be destroyed.
func (p *Instance) Destroy() {
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := dieselxr.Logger().With("layer", pLayerPrefix, "code", messageCode)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		log.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn(pMessage, "performance", true)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		log.Debug(pMessage)
	default:
		log.Info(pMessage)
	}
	return vk.Bool32(vk.False)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
