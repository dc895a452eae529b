package ipcring

import "github.com/adiknoth/ffado-sub007/internal/constants"

// Re-exported tunables for callers that only need the public API.
const (
	DefaultNumSlots     = constants.DefaultNumSlots
	DefaultBlockSize    = constants.DefaultBlockSize
	MaxMessages         = constants.MaxMessages
	MaxMessageSize      = constants.MaxMessageSize
	DefaultQueueTimeout = constants.DefaultQueueTimeout
)
