package httpapi

import (
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, request-level events are
// not logged (middleware recovery and metrics still apply).
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }
