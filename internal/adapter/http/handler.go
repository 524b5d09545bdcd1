package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/http/middleware"
	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

const defaultMaxUploadSize = 10 << 20

// base carries what every handler needs to turn a request into a core call
type base struct {
	clock         ports.Clock
	logger        logger.Logger
	maxUploadSize int64
}

func newBase(clock ports.Clock, log logger.Logger, maxUploadSize int64) base {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return base{clock: clock, logger: log, maxUploadSize: maxUploadSize}
}

// requestContext builds the core request context from the authenticated principal
func (b base) requestContext(w http.ResponseWriter, r *http.Request) (domain.RequestContext, bool) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		response.Unauthorized(w, "User not authenticated")
		return domain.RequestContext{}, false
	}
	return domain.NewRequestContext(principal, b.clock.Now()), true
}

// writeError maps err to a response. Internal failures are logged, never echoed.
func (b base) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		b.logger.Error(r.Context(), "request failed", err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	response.Error(w, appErr.Status, appErr.Message, appErr.Code)
}

func (b base) ok(w http.ResponseWriter, message string, data interface{}) {
	response.Success(w, http.StatusOK, message, data)
}

func (b base) created(w http.ResponseWriter, message string, data interface{}) {
	response.Success(w, http.StatusCreated, message, data)
}

// pathID reads a positive integer path variable
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}

// queryID reads an optional positive integer query parameter
func queryID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, fmt.Sprintf("Invalid %s", name))
		return nil, false
	}
	return &id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// form is a parsed multipart request with an optional file
type form struct {
	values map[string][]string
	upload *usecase.Upload
	file   multipart.File
}

func (f *form) value(name string) string {
	if v := f.values[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (f *form) close() {
	if f.file != nil {
		f.file.Close()
	}
}

// parseForm reads a multipart body bounded by the upload limit. fileField is optional in the request.
func (b base) parseForm(w http.ResponseWriter, r *http.Request, fileField string) (*form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, b.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(b.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit", "PAYLOAD_TOO_LARGE")
			return nil, false
		}
		response.BadRequest(w, "Invalid multipart form")
		return nil, false
	}

	f := &form{values: r.MultipartForm.Value}
	file, header, err := r.FormFile(fileField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return f, true
	case err != nil:
		response.BadRequest(w, "Invalid file upload")
		return nil, false
	}
	if header.Size > b.maxUploadSize {
		file.Close()
		response.Error(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit", "PAYLOAD_TOO_LARGE")
		return nil, false
	}

	f.file = file
	f.upload = &usecase.Upload{Filename: header.Filename, Content: file}
	return f, true
}
