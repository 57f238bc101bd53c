package registry

import (
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type RecorderPCMFactory interface {
	NewRecorderPCM() (types.RecorderPCM, error)
}

var recorderFactoryRegistry factoryRegistry[RecorderPCMFactory]

// RegisterRecorderFactory panics if a factory of the same type is already registered.
func RegisterRecorderFactory(
	priority int,
	recorderPCMFactory RecorderPCMFactory,
) {
	recorderFactoryRegistry.register("RecorderPCM", priority, recorderPCMFactory)
}

func RecorderFactories() []RecorderPCMFactory {
	return recorderFactoryRegistry.list()
}
