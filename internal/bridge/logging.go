package bridge

import "github.com/tphakala/rtbridge/internal/logger"

// GetLogger returns the bridge logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(ComponentBridge)
}
