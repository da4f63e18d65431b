package imports

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	validation "github.com/go-ozzo/ozzo-validation"

	"dicom-import-api/client"
	"dicom-import-api/importer"
)

// ErrResponse renderer type for handling all sorts of errors.
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText       string            `json:"status"`                // user-level status message
	ErrorText        string            `json:"error,omitempty"`       // application-level error message, for debugging
	ValidationErrors validation.Errors `json:"errors,omitempty"`      // user level model validation errors
	Level            string            `json:"lookupLevel,omitempty"` // context level of a failed lookup
}

// Render sets the application-specific error code in AppCode.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrInvalidRequest returns status 400 Bad Request for malformed request body.
func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     http.StatusText(http.StatusBadRequest),
		ErrorText:      err.Error(),
	}
}

// ErrValidation returns status 422 Unprocessable Entity including validation errors.
func ErrValidation(err error, valErr validation.Errors) render.Renderer {
	return &ErrResponse{
		Err:              err,
		HTTPStatusCode:   http.StatusUnprocessableEntity,
		StatusText:       http.StatusText(http.StatusUnprocessableEntity),
		ErrorText:        err.Error(),
		ValidationErrors: valErr,
	}
}

// ErrUnprocessable returns status 422 Unprocessable Entity.
func ErrUnprocessable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     http.StatusText(http.StatusUnprocessableEntity),
		ErrorText:      err.Error(),
	}
}

// ErrTooLarge returns status 413 Request Entity Too Large for oversized archives.
func ErrTooLarge(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		StatusText:     http.StatusText(http.StatusRequestEntityTooLarge),
		ErrorText:      err.Error(),
	}
}

// ErrConflict returns status 409 Conflict.
func ErrConflict(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		StatusText:     http.StatusText(http.StatusConflict),
		ErrorText:      err.Error(),
	}
}

// ErrBadGateway returns status 502 Bad Gateway for failed backend calls.
func ErrBadGateway(err error) render.Renderer {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadGateway,
		StatusText:     http.StatusText(http.StatusBadGateway),
		ErrorText:      err.Error(),
	}
	var le *importer.LookupError
	if errors.As(err, &le) {
		resp.Level = le.Level.String()
	}
	return resp
}

var (
	// ErrNotFound returns status 404 Not Found for invalid resource request.
	ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: http.StatusText(http.StatusNotFound)}

	// ErrInternalServerError returns status 500 Internal Server Error.
	ErrInternalServerError = &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: http.StatusText(http.StatusInternalServerError)}
)

// ErrBind maps a render.Bind failure.
func ErrBind(err error) render.Renderer {
	var valErr validation.Errors
	if errors.As(err, &valErr) {
		return ErrValidation(err, valErr)
	}
	return ErrInvalidRequest(err)
}

// errRender maps domain errors to responses. Unknown errors are logged and hidden.
func errRender(r *http.Request, err error) render.Renderer {
	var valErr validation.Errors
	var lookupErr *importer.LookupError
	var statusErr *client.StatusError

	switch {
	case errors.Is(err, importer.ErrSessionNotFound),
		errors.Is(err, importer.ErrSerieNotFound),
		errors.Is(err, importer.ErrNodeNotFound),
		errors.Is(err, importer.ErrImageNotFound):
		return ErrNotFound
	case errors.Is(err, importer.ErrStepBusy),
		errors.Is(err, importer.ErrHandoffReleased),
		errors.Is(err, importer.ErrWorkFolderInUse):
		return ErrConflict(err)
	case errors.Is(err, importer.ErrUnknownOption),
		errors.Is(err, importer.ErrNoPatients):
		return ErrUnprocessable(err)
	case errors.As(err, &valErr):
		return ErrValidation(err, valErr)
	case errors.As(err, &lookupErr), errors.As(err, &statusErr):
		return ErrBadGateway(err)
	}
	log(r).WithError(err).Error("unexpected error")
	return ErrInternalServerError
}
