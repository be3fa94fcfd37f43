package audiograph

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrNotRunning   = errors.New("engine not running")
	ErrNotManual    = errors.New("engine does not render manually")
	ErrUnknownNode  = errors.New("node not part of the engine")
	ErrNodeExists   = errors.New("node already part of the engine")
	ErrFinalMixer   = errors.New("final mixer cannot be removed")
	ErrStateVersion = errors.New("incompatible state version")
)

// ErrorHandler receives every non-fatal error of the engine.
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler logs errors at warn level.
type DefaultErrorHandler struct {
	Logger *zap.Logger
}

func (h *DefaultErrorHandler) HandleError(err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("engine error", zap.Error(err))
}

// LoggingErrorHandler wraps another handler and logs errors
type LoggingErrorHandler struct {
	underlying ErrorHandler
	logger     func(error)
}

func NewLoggingErrorHandler(underlying ErrorHandler, logger func(error)) *LoggingErrorHandler {
	return &LoggingErrorHandler{
		underlying: underlying,
		logger:     logger,
	}
}

func (h *LoggingErrorHandler) HandleError(err error) {
	if h.logger != nil {
		h.logger(err)
	}
	if h.underlying != nil {
		h.underlying.HandleError(err)
	}
}

// PanicErrorHandler panics on any error (useful for development)
type PanicErrorHandler struct{}

func (h *PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("engine error: %v", err))
}
