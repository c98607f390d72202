package observability

import "github.com/tphakala/rtbridge/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("observability")
