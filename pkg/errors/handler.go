package errors

import "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/logger"

// Handler centralizes the logging side-effects of each error kind so
// callers only need to produce a *BridgeError and call Handle.
type Handler struct {
	log logger.Logger
}

// NewHandler creates a Handler that logs through log.
func NewHandler(log logger.Logger) *Handler {
	return &Handler{log: log}
}

// Handle logs err at the verbosity appropriate to its kind. It is a no-op
// for a nil error.
func (h *Handler) Handle(err error) {
	if err == nil {
		return
	}

	be, ok := err.(*BridgeError)
	if !ok {
		h.log.Error("unclassified error: %v", err)
		return
	}

	l := h.log
	if be.Account != "" {
		l = l.With("account", be.Account)
	}
	if be.MAC != "" {
		l = l.With("mac", be.MAC)
	}

	switch be.Kind {
	case TransientNet:
		l.Warn("transient failure in %s: %v", be.Op, be.Err)
	case AuthRejected:
		l.Error("auth rejected in %s: %v", be.Op, be.Err)
	case ProtocolError:
		l.Debug("dropping malformed frame in %s: %v", be.Op, be.Err)
	case BadInput:
		l.Warn("rejected bad input in %s: %v", be.Op, be.Err)
	case PersistenceError:
		l.Warn("cache I/O failure treated as miss in %s: %v", be.Op, be.Err)
	case Terminal:
		l.Error("terminal failure in %s: %v", be.Op, be.Err)
	default:
		l.Error("error in %s: %v", be.Op, be.Err)
	}
}
