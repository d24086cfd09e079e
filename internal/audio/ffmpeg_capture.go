package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"realtalk/internal/ports"
)

// opusClockRate is the granule rate of Ogg/Opus streams.
const opusClockRate = 48000

// FFMPEGCapture streams microphone audio as Ogg/Opus using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = opusClockRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "libopus",
		"-application", "voip",
		"-frame_duration", "20",
		"-page_duration", "20000",
		"-f", "ogg",
		"-",
	}
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	readerOnce sync.Once
	reader     *oggreader.OggReader
	readerErr  error
	clock      granuleClock

	stopOnce sync.Once
	stopErr  error
}

// NextPacket returns the next Ogg page payload with the duration derived
// from its granule position. Each page is treated as one Opus packet, which
// holds while ffmpeg flushes a page per 20ms frame (-page_duration 20000).
// NextPacket must not be called concurrently.
func (s *ffmpegSession) NextPacket() ([]byte, time.Duration, error) {
	s.readerOnce.Do(func() {
		reader, header, err := oggreader.NewWith(s.stdout)
		if err != nil {
			s.readerErr = fmt.Errorf("failed to read ogg header: %w", err)
			return
		}
		s.reader = reader
		s.clock.preSkip = uint64(header.PreSkip)
	})
	if s.readerErr != nil {
		return nil, 0, s.readerErr
	}

	for {
		payload, header, err := s.reader.ParseNextPage()
		if err != nil {
			return nil, 0, err
		}
		samples, ok := s.clock.advance(header.GranulePosition)
		if !ok {
			continue
		}
		return payload, time.Duration(samples) * time.Second / opusClockRate, nil
	}
}

// granuleClock turns Ogg/Opus granule positions into per-page sample counts.
type granuleClock struct {
	preSkip uint64
	last    uint64
	started bool
}

// advance reports the samples a page adds. Pages that do not move the
// granule forward, such as OpusTags, report false. The first audio page's
// granule includes the encoder pre-skip, which is not played out.
func (g *granuleClock) advance(granule uint64) (uint64, bool) {
	if granule == 0 || granule <= g.last {
		return 0, false
	}
	samples := granule - g.last
	if !g.started {
		g.started = true
		if samples > g.preSkip {
			samples -= g.preSkip
		}
	}
	g.last = granule
	return samples, true
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
