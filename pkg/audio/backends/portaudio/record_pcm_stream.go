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

type RecordPCMStream struct {
	PortAudioStream *portaudio.Stream
	InputBuffer     []byte
	Writer          io.Writer
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup
	CloseOnce       sync.Once
	CloseErr        error

	locker sync.Mutex
	err    error
}

var (
	_ types.RecordStream    = (*RecordPCMStream)(nil)
	_ types.LatencyReporter = (*RecordPCMStream)(nil)
)

func newRecordPCMStream(
	stream *portaudio.Stream,
	inputBuffer []byte,
	writer io.Writer,
) *RecordPCMStream {
	return &RecordPCMStream{
		PortAudioStream: stream,
		InputBuffer:     inputBuffer,
		Writer:          writer,
		CancelFunc:      func() {},
	}
}

func (s *RecordPCMStream) start(ctx context.Context) error {
	ctx, s.CancelFunc = context.WithCancel(ctx)

	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(2)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		<-ctx.Done()
		s.Close()
	})
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		defer s.CancelFunc()
		err := s.readLoop(ctx)
		s.locker.Lock()
		s.err = err
		s.locker.Unlock()
	})
	return nil
}

// readLoop hands every chunk to the writer synchronously: the writer
// is expected to be fast (it only buffers).
func (s *RecordPCMStream) readLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "readLoop")
	defer func() { logger.Debugf(ctx, "/readLoop: %v", _ret) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		logger.Tracef(ctx, "Read")
		err := s.PortAudioStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		if err != nil {
			return fmt.Errorf("unable to read: %w", err)
		}

		n, err := s.Writer.Write(s.InputBuffer)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(s.InputBuffer) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(s.InputBuffer))
		}
	}
}

// Err returns the error that terminated the stream, if any.
func (s *RecordPCMStream) Err() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.err
}

func (s *RecordPCMStream) Latency() time.Duration {
	info := s.PortAudioStream.Info()
	if info == nil {
		return 0
	}
	return info.InputLatency
}

func (s *RecordPCMStream) Close() error {
	s.CloseOnce.Do(func() {
		s.CancelFunc()
		s.CloseErr = s.PortAudioStream.Abort()
	})
	return s.CloseErr
}
