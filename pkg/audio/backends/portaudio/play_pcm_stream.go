package portaudio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/observability"
)

// PlayPCMStream double-buffers: one goroutine fills InputBuffer from the
// reader while the other pushes the previous chunk to the device.
type PlayPCMStream struct {
	PortAudioStream  *portaudio.Stream
	OutputBuffer     []byte
	InputBuffer      []byte
	Reader           io.Reader
	CancelFunc       context.CancelFunc
	WaitGroup        sync.WaitGroup
	StartWritingChan chan struct{}
	StartReadingChan chan struct{}
	CloseOnce        sync.Once
	CloseErr         error
}

var (
	_ types.PlayStream      = (*PlayPCMStream)(nil)
	_ types.LatencyReporter = (*PlayPCMStream)(nil)
)

func newPlayPCMStream(
	stream *portaudio.Stream,
	outputBuffer []byte,
	reader io.Reader,
) *PlayPCMStream {
	return &PlayPCMStream{
		PortAudioStream:  stream,
		OutputBuffer:     outputBuffer,
		InputBuffer:      make([]byte, len(outputBuffer)),
		Reader:           reader,
		CancelFunc:       func() {},
		StartWritingChan: make(chan struct{}),
		StartReadingChan: make(chan struct{}),
	}
}

func (s *PlayPCMStream) start(ctx context.Context) error {
	ctx, s.CancelFunc = context.WithCancel(ctx)

	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(3)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		<-ctx.Done()
		s.Close()
	})
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		defer s.CancelFunc()
		s.readerLoop(ctx)
	})
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		defer s.CancelFunc()
		s.writerLoop(ctx)
	})
	return nil
}

func (s *PlayPCMStream) readerLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "readerLoop")
	defer func() { logger.Debugf(ctx, "/readerLoop: %v", _ret) }()
	defer close(s.StartWritingChan)

	for {
		if _, err := io.ReadFull(s.Reader, s.InputBuffer); err != nil {
			return fmt.Errorf("unable to read: %w", err)
		}
		select {
		case s.StartWritingChan <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case _, ok := <-s.StartReadingChan:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *PlayPCMStream) writerLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "writerLoop")
	defer func() { logger.Debugf(ctx, "/writerLoop: %v", _ret) }()
	defer close(s.StartReadingChan)

	for {
		if _, ok := <-s.StartWritingChan; !ok {
			return nil
		}
		copy(s.OutputBuffer, s.InputBuffer)
		select {
		case s.StartReadingChan <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		logger.Tracef(ctx, "Write")
		err := s.PortAudioStream.Write()
		logger.Tracef(ctx, "/Write: %v", err)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
	}
}

func (s *PlayPCMStream) Latency() time.Duration {
	info := s.PortAudioStream.Info()
	if info == nil {
		return 0
	}
	return info.OutputLatency
}

func (s *PlayPCMStream) Close() error {
	s.CloseOnce.Do(func() {
		s.CancelFunc()
		s.CloseErr = s.PortAudioStream.Abort()
	})
	return s.CloseErr
}

func (s *PlayPCMStream) Drain() error {
	s.WaitGroup.Wait()
	return nil
}
