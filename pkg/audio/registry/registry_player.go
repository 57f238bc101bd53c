package registry

import (
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

var playerFactoryRegistry factoryRegistry[PlayerPCMFactory]

// RegisterPlayerFactory panics if a factory of the same type is already registered.
func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	playerFactoryRegistry.register("PlayerPCM", priority, playerPCMFactory)
}

func PlayerFactories() []PlayerPCMFactory {
	return playerFactoryRegistry.list()
}
