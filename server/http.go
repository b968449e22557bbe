package server

import (
	"errors"
	"go.uber.org/zap"
	"io"
	"machinery/message"
	"machinery/middleware"
	"machinery/protocol"
	"net/http"
)

// HTTPHandler serves the HTTP binding: POST with the ServiceID in the
// x-machinery-service header and the argument array as body. Every call that
// reaches the dispatcher is answered 200 with the envelope, failures included.
type HTTPHandler struct {
	handler middleware.HandlerFunc
	logger  *zap.Logger
}

// NewHTTPHandler wraps h, usually Server.Handler or Dispatcher.Handle.
func NewHTTPHandler(h middleware.HandlerFunc, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{handler: h, logger: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	serviceID := r.Header.Get(message.ServiceHeader)
	if serviceID == "" {
		h.write(w, http.StatusBadRequest, serviceID, message.Failure("Missing service name"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(protocol.MaxBodyLen)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}

	ctx := NewContext(r.Context(), Metadata{RemoteAddr: r.RemoteAddr, Header: r.Header.Clone()})
	reply := h.handler(ctx, &message.Call{ServiceID: serviceID, Args: body})

	h.write(w, http.StatusOK, serviceID, reply.Body)
}

// write sends an envelope as the JSON response body.
func (h *HTTPHandler) write(w http.ResponseWriter, status int, serviceID string, envelope []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(envelope); err != nil {
		h.logger.Debug("write response", zap.String("service", serviceID), zap.Error(err))
	}
}
