package host

import (
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// MalgoConfig configures a duplex miniaudio device.
type MalgoConfig struct {
	Layout         Layout
	Backend        string // "alsa", "pulseaudio", "jack", "wasapi", "coreaudio" or "" for the OS default
	CaptureDevice  string // name substring, empty selects the default device
	PlaybackDevice string
	Periods        int
}

// DeviceInfo describes an audio device.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Malgo is an Engine backed by a miniaudio duplex device. The device is
// initialised on Connect and torn down on Disconnect.
type Malgo struct {
	cfg     MalgoConfig
	slot    slot
	log     logger.Logger
	backend malgo.Backend

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	closed  bool
	silence []float32
}

// NewMalgo initialises the miniaudio context. No device is opened yet.
func NewMalgo(cfg MalgoConfig, log logger.Logger) (*Malgo, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Global().Module("host")
	}
	backend, err := backendFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(msg string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(msg)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentHost).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", cfg.Backend).
			Build()
	}

	return &Malgo{
		cfg:     cfg,
		log:     log,
		backend: backend,
		ctx:     ctx,
		silence: make([]float32, cfg.Layout.BufferFrames*cfg.Layout.InputChannels),
	}, nil
}

// Layout returns the requested buffer layout.
func (m *Malgo) Layout() Layout { return m.cfg.Layout }

// Attach registers the process function.
func (m *Malgo) Attach(fn ProcessFunc) error { return m.slot.attach(fn) }

// Detach removes the process function once no callback is running.
func (m *Malgo) Detach() { m.slot.detach() }

// Devices lists capture and playback devices.
func (m *Malgo) Devices() (capture, playback []DeviceInfo, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, nil, errors.New(ErrClosed).Component(ComponentHost).Category(errors.CategoryState).Build()
	}

	list := func(kind malgo.DeviceType) ([]DeviceInfo, error) {
		infos, err := m.ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentHost).
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Build()
		}
		out := make([]DeviceInfo, 0, len(infos))
		for i := range infos {
			out = append(out, DeviceInfo{Name: infos[i].Name(), IsDefault: infos[i].IsDefault == 1})
		}
		return out, nil
	}

	if capture, err = list(malgo.Capture); err != nil {
		return nil, nil, err
	}
	if playback, err = list(malgo.Playback); err != nil {
		return nil, nil, err
	}
	return capture, playback, nil
}

// Connect opens and starts the duplex device.
func (m *Malgo) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed || m.ctx == nil:
		return errors.New(ErrClosed).Component(ComponentHost).Category(errors.CategoryState).Build()
	case m.device != nil:
		return errors.New(ErrAlreadyConnected).Component(ComponentHost).Category(errors.CategoryState).Build()
	}

	l := m.cfg.Layout
	deviceType := malgo.Duplex
	switch {
	case l.InputChannels == 0:
		deviceType = malgo.Playback
	case l.OutputChannels == 0:
		deviceType = malgo.Capture
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = uint32(l.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(l.BufferFrames)
	deviceConfig.Periods = uint32(max(m.cfg.Periods, 1))
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(l.InputChannels)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(l.OutputChannels)
	deviceConfig.Alsa.NoMMap = 1

	if l.InputChannels > 0 {
		id, err := m.findDevice(malgo.Capture, m.cfg.CaptureDevice)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = id
	}
	if l.OutputChannels > 0 {
		id, err := m.findDevice(malgo.Playback, m.cfg.PlaybackDevice)
		if err != nil {
			return err
		}
		deviceConfig.Playback.DeviceID = id
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onData,
		Stop: m.onStop,
	})
	if err != nil {
		return errors.New(err).
			Component(ComponentHost).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("sample_rate", l.SampleRate).
			Context("buffer_frames", l.BufferFrames).
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return errors.New(err).
			Component(ComponentHost).
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Build()
	}

	m.device = device
	m.log.Info("audio device started",
		logger.String("backend", m.cfg.Backend),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("buffer_frames", l.BufferFrames),
		logger.Int("input_channels", l.InputChannels),
		logger.Int("output_channels", l.OutputChannels))
	return nil
}

// Disconnect stops the device. miniaudio returns from Stop only after the
// data callback has finished.
func (m *Malgo) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return errors.New(ErrNotConnected).Component(ComponentHost).Category(errors.CategoryState).Build()
	}
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	if err != nil {
		return errors.New(err).
			Component(ComponentHost).
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	m.log.Info("audio device stopped")
	return nil
}

// Close disconnects if needed and releases the miniaudio context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	connected := m.device != nil
	m.mu.Unlock()

	var errs []error
	if connected {
		errs = append(errs, m.Disconnect())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		errs = append(errs, m.ctx.Uninit())
		m.ctx.Free()
		m.ctx = nil
	}
	m.closed = true
	return errors.Join(errs...)
}

// onData runs on the miniaudio thread.
func (m *Malgo) onData(pOutput, pInput []byte, frameCount uint32) {
	frames := int(frameCount)
	l := &m.cfg.Layout

	in := float32View(pInput)
	out := float32View(pOutput)
	if len(in) < frames*l.InputChannels {
		in = m.silence
	}
	m.slot.invoke(l, frames, in, out)
}

func (m *Malgo) onStop() {
	m.log.Warn("audio device stopped by backend")
}

// findDevice returns the ID of the first device whose name contains name,
// or the default device when name is empty.
func (m *Malgo) findDevice(kind malgo.DeviceType, name string) (unsafe.Pointer, error) {
	if name == "" || name == "default" {
		return nil, nil
	}
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentHost).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), strings.ToLower(name)) {
			return infos[i].ID.Pointer(), nil
		}
	}
	return nil, errors.Newf("audio device %q not found", name).
		Component(ComponentHost).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Build()
}

// float32View reinterprets a miniaudio f32 byte buffer without copying.
func float32View(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func backendFor(name string) (malgo.Backend, error) {
	switch strings.ToLower(name) {
	case "alsa":
		return malgo.BackendAlsa, nil
	case "pulseaudio", "pulse":
		return malgo.BackendPulseaudio, nil
	case "jack":
		return malgo.BackendJack, nil
	case "wasapi":
		return malgo.BackendWasapi, nil
	case "coreaudio":
		return malgo.BackendCoreaudio, nil
	case "null":
		return malgo.BackendNull, nil
	case "":
	default:
		return malgo.BackendNull, errors.Newf("unknown audio backend %q", name).
			Component(ComponentHost).
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, nil
	}
}
