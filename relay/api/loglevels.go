package api

import (
	"io"
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/logfields"
)

const (
	logSpecPath = "/loglevels"

	internalServerErrorResponse = "Internal Server Error.\n"
	badRequestResponse          = "Bad Request.\n"
)

// logSpecWriter updates the default log level and/or the levels of modules.
type logSpecWriter struct {
	readAll func(r io.Reader) ([]byte, error)
}

func newLogSpecWriter() *logSpecWriter {
	return &logSpecWriter{readAll: io.ReadAll}
}

func (h *logSpecWriter) Method() string { return http.MethodPost }

func (h *logSpecWriter) Path() string { return logSpecPath }

func (h *logSpecWriter) Handler() http.HandlerFunc { return h.handlePost }

func (h *logSpecWriter) handlePost(w http.ResponseWriter, req *http.Request) {
	reqBytes, err := h.readAll(req.Body)
	if err != nil {
		logger.Error("Error reading request body", log.WithError(err))

		writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	request := string(reqBytes)

	if err := log.SetSpec(request); err != nil {
		logger.Warn("Set logging spec error", logfields.WithLogSpec(request), log.WithError(err))

		writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	logger.Info("Successfully updated log levels", logfields.WithLogSpec(log.GetSpec()))

	writeResponse(w, http.StatusOK, nil)
}

// logSpecReader returns the spec as "module1=level1:module2=level2:defaultLevel".
type logSpecReader struct{}

func (logSpecReader) Method() string { return http.MethodGet }

func (logSpecReader) Path() string { return logSpecPath }

func (logSpecReader) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, []byte(log.GetSpec()))
	}
}

func writeResponse(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			logger.Warn("Unable to write response", log.WithError(err))
		}
	}
}
