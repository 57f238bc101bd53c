package audio

import (
	"context"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
)

type Recorder struct {
	RecorderPCM
}

func NewRecorder(recorderPCM RecorderPCM) *Recorder {
	return &Recorder{
		RecorderPCM: recorderPCM,
	}
}

var lastSuccessfulRecorderFactory lastSuccessful[registry.RecorderPCMFactory]

// NewRecorderAuto returns a recorder of the highest-priority backend that
// is reachable. If none is, it returns a recorder that never produces data.
func NewRecorderAuto(
	ctx context.Context,
) *Recorder {
	recorder, err := initFirstWorking(
		ctx,
		&lastSuccessfulRecorderFactory,
		registry.RecorderFactories(),
		func(f registry.RecorderPCMFactory) (RecorderPCM, error) {
			return f.NewRecorderPCM()
		},
	)
	if err != nil {
		logger.Infof(ctx, "was unable to initialize any PCM recorder: %v", err)
		return NewRecorder(RecorderPCMDummy{})
	}
	return NewRecorder(recorder)
}

func (a *Recorder) RecordPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	pcmWriter io.Writer,
) (RecordStream, error) {
	logger.Debugf(ctx, "RecordPCM(%d, %d, %s) via %T", sampleRate, channels, pcmFormat, a.RecorderPCM)
	return a.RecorderPCM.RecordPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		pcmWriter,
	)
}
