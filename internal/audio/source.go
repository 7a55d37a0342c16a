package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/collectivat/mic2etherpad/internal/config"
	"github.com/gordonklaus/portaudio"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Device describes an input-capable portaudio device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// Source streams microphone blocks into a bounded channel. The portaudio
// callback never blocks: when the consumer falls behind, blocks are dropped
// and counted.
type Source struct {
	log        *slog.Logger
	stream     *portaudio.Stream
	device     Device
	sampleRate int
	frames     chan Frame
	dropped    atomic.Int64
	stopped    atomic.Bool
	closeOnce  sync.Once
	reg        metric.Registration
}

// ListDevices returns every device portaudio knows about.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()
	return listDevices()
}

func listDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()
	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		d := Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           def != nil && def.Name == info.Name,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// SelectDevice resolves a device query the way the CLI accepts it: a numeric
// index, or a case-insensitive substring that must match exactly one input
// device. An empty query picks the default input device.
func SelectDevice(devices []Device, query string) (Device, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		for _, d := range devices {
			if d.Default && d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		for _, d := range devices {
			if d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		return Device{}, errors.New("no input device available")
	}
	if idx, err := strconv.Atoi(query); err == nil {
		for _, d := range devices {
			if d.Index == idx {
				if d.MaxInputChannels == 0 {
					return Device{}, fmt.Errorf("device %d has no input channels", idx)
				}
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("no device with index %d", idx)
	}
	needle := strings.ToLower(query)
	var matches []Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return Device{}, fmt.Errorf("no input device matching %q", query)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, d := range matches {
			names = append(names, d.Name)
		}
		return Device{}, fmt.Errorf("multiple input devices match %q: %s", query, strings.Join(names, ", "))
	}
}

// Open initializes portaudio and prepares a mono int16 input stream.
// Capture starts with Start.
func Open(cfg config.AudioConfig, log *slog.Logger) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	devices, err := listDevices()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	device, err := SelectDevice(devices, cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = int(device.DefaultSampleRate)
	}

	s := &Source{
		log:        log.With(slog.String("component", "audio-source")),
		device:     device,
		sampleRate: sampleRate,
		frames:     make(chan Frame, cfg.QueueSize),
	}

	info := infos[device.Index]
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}
	stream, err := portaudio.OpenStream(params, s.capture)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}
	s.stream = stream

	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}

	s.log.Info("audio input opened",
		slog.String("device", device.Name),
		slog.Int("index", device.Index),
		slog.Int("sample_rate", sampleRate),
		slog.Int("block_size", cfg.BlockSize))
	return s, nil
}

// capture runs on the portaudio thread.
func (s *Source) capture(in []int16) {
	if s.stopped.Load() {
		return
	}
	frame := make(Frame, len(in))
	copy(frame, in)
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

func (s *Source) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	return nil
}

func (s *Source) Frames() <-chan Frame { return s.frames }

func (s *Source) SampleRate() int { return s.sampleRate }

func (s *Source) Device() Device { return s.device }

// Dropped is the number of blocks discarded because the queue was full.
func (s *Source) Dropped() int64 { return s.dropped.Load() }

// Close stops capture and closes the frame channel. Stop returns only after
// the last callback has finished, so closing the channel afterwards is safe.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		if s.stream != nil {
			if stopErr := s.stream.Stop(); stopErr != nil {
				err = stopErr
			}
			if closeErr := s.stream.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
		close(s.frames)
		if s.reg != nil {
			_ = s.reg.Unregister()
		}
		if termErr := portaudio.Terminate(); termErr != nil && err == nil {
			err = termErr
		}
		if dropped := s.dropped.Load(); dropped > 0 {
			s.log.Warn("audio frames dropped", slog.Int64("count", dropped))
		}
	})
	return err
}

func (s *Source) initMetrics() error {
	meter := otel.Meter("github.com/collectivat/mic2etherpad/audio")
	dropped, err := meter.Int64ObservableCounter("mic2ether.audio.dropped_frames",
		metric.WithDescription("Audio blocks dropped because the processing queue was full"))
	if err != nil {
		return err
	}
	s.reg, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(dropped, s.dropped.Load())
		return nil
	}, dropped)
	return err
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
