package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/gen2brain/malgo"
)

// MalgoInput captures from a miniaudio device.
type MalgoInput struct {
	backends []malgo.Backend
	device   string // substring of the device name, empty for the default
	verbose  bool
}

// Open initializes a miniaudio context and a capture device bound to it.
func (m *MalgoInput) Open(format clip.Format, onData func(pcm []byte)) (InputStream, error) {
	var logProc malgo.LogProc
	if m.verbose {
		logProc = func(message string) {
			slog.Debug("miniaudio", "message", strings.TrimSpace(message))
		}
	}

	ctx, err := malgo.InitContext(m.backends, malgo.ContextConfig{}, logProc)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)

	if m.device != "" {
		info, err := findCaptureDevice(ctx, m.device)
		if err != nil {
			freeContext(ctx)
			return nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
		slog.Debug("Using capture device", "name", info.Name())
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	return &malgoStream{ctx: ctx, device: device}, nil
}

type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (s *malgoStream) Start() error {
	return s.device.Start()
}

// Close uninitializes the device (which stops it and joins the callback
// thread) before tearing down the context.
func (s *malgoStream) Close() error {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		freeContext(s.ctx)
		s.ctx = nil
	}
	return nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		slog.Debug("Failed to uninit audio context", "error", err)
	}
	ctx.Free()
}

func findCaptureDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	lower := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), lower) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("capture device not found: %s", name)
}

// CaptureDevice describes an enumerated input device
type CaptureDevice struct {
	Name      string `json:"name" yaml:"name"`
	IsDefault bool   `json:"is_default" yaml:"is_default"`
}

// ListCaptureDevices returns the capture devices visible to the configured backend
func ListCaptureDevices(input InputDevice) ([]CaptureDevice, error) {
	m, ok := input.(*MalgoInput)
	if !ok {
		return nil, fmt.Errorf("device listing not supported by %T", input)
	}

	ctx, err := malgo.InitContext(m.backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]CaptureDevice, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, CaptureDevice{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}
