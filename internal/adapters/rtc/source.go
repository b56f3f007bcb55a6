package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"

	"github.com/revcam/revcam/internal/core"
)

// VideoSource supplies encoded video frames to a broadcaster. A source that
// can flip its picture while running reports true from SetMirror/SetRotate;
// one that cannot reports false and the change waits for the next session.
type VideoSource interface {
	NextFrame(ctx context.Context) (media.Sample, error)
	SetMirror(core.Mirror) bool
	SetRotate(core.Rotation) bool
	Close() error
}

var errSourceClosed = errors.New("video source closed")

// IVFSource loops a pre-encoded VP8 IVF file at the configured frame rate.
// It stands in for the camera pipeline on machines without one; the frames
// are already encoded, so mirror and rotate cannot be applied live.
type IVFSource struct {
	mu       sync.Mutex
	file     *os.File
	reader   *ivfreader.IVFReader
	closed   bool
	ticker   *time.Ticker
	frameDur time.Duration
}

func NewIVFSource(path string, fps int) (*IVFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video source: %w", err)
	}
	reader, _, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse ivf header: %w", err)
	}
	if fps <= 0 {
		fps = 25
	}
	dur := time.Second / time.Duration(fps)
	return &IVFSource{
		file:     f,
		reader:   reader,
		ticker:   time.NewTicker(dur),
		frameDur: dur,
	}, nil
}

func (s *IVFSource) NextFrame(ctx context.Context) (media.Sample, error) {
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-s.ticker.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return media.Sample{}, errSourceClosed
	}

	frame, _, err := s.reader.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		if err = s.rewind(); err != nil {
			return media.Sample{}, err
		}
		frame, _, err = s.reader.ParseNextFrame()
	}
	if err != nil {
		return media.Sample{}, fmt.Errorf("read frame: %w", err)
	}
	return media.Sample{Data: frame, Duration: s.frameDur}, nil
}

func (s *IVFSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind video source: %w", err)
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return fmt.Errorf("reopen video source: %w", err)
	}
	s.reader = reader
	return nil
}

// SetMirror always reports false: the file is already encoded.
func (s *IVFSource) SetMirror(core.Mirror) bool { return false }

// SetRotate always reports false: the file is already encoded.
func (s *IVFSource) SetRotate(core.Rotation) bool { return false }

func (s *IVFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ticker.Stop()
	return s.file.Close()
}
