// handlers_ocr.go - Image recognition and cancellation handlers
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/stream"
	"github.com/ocrdesk/ocrdesk/internal/upload"
)

const modelNotLoaded = "Model not loaded. Check server logs."

// OCRHandlerImpl implements the OCRHandler interface
type OCRHandlerImpl struct {
	jobs JobRunner
	log  zerolog.Logger
}

// NewOCRHandler creates a new OCR handler
func NewOCRHandler(jobs JobRunner, log zerolog.Logger) OCRHandler {
	return &OCRHandlerImpl{jobs: jobs, log: logging.Component(log, "ocr")}
}

// HandleOCR recognizes the uploaded image and streams the result as it is
// produced. Once the first fragment is written, failures can only be
// reported in-band: an abort ends the body with the sentinel and an engine
// error with an HTML comment.
func (h *OCRHandlerImpl) HandleOCR(c echo.Context) error {
	if !h.jobs.HasEngine() {
		return NewServiceUnavailableError(modelNotLoaded)
	}

	mode, err := models.ParseSessionType(c.FormValue("type"))
	if err != nil {
		return NewBadRequestError(err.Error())
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("file is required")
	}
	data, err := readFormFile(fh)
	if err != nil {
		return NewBadRequestError(fmt.Sprintf("reading upload: %v", err))
	}

	res := c.Response()
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		res.Header().Set("X-Filename", fh.Filename)
		res.Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		res.Header().Set("Cache-Control", "no-cache")
		res.WriteHeader(http.StatusOK)
	}
	write := func(s string) error {
		start()
		if _, err := io.WriteString(res, s); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	req := engine.Request{Image: data, Filename: fh.Filename, Mode: mode}
	job, err := h.jobs.Run(c.Request().Context(), req, write)

	switch {
	case err == nil:
		start()
		return nil
	case errors.Is(err, upload.ErrAborted):
		_ = write(stream.Sentinel)
		return nil
	case c.Request().Context().Err() != nil:
		h.log.Debug().Str("job", logging.ShortID(job.ID)).Msg("client went away")
		return nil
	case started:
		_ = write(fmt.Sprintf("\n<!-- Error: %s -->", sanitizeComment(err.Error())))
		return nil
	case errors.Is(err, engine.ErrUnavailable):
		return NewServiceUnavailableError(modelNotLoaded)
	default:
		return NewInternalError("Processing failed", err)
	}
}

// HandleCancel aborts every running job. It reports "no model" when there
// is no engine to abort.
func (h *OCRHandlerImpl) HandleCancel(c echo.Context) error {
	if !h.jobs.HasEngine() {
		return c.JSON(http.StatusOK, models.StatusResponse{Status: "no model"})
	}
	n := h.jobs.AbortAll()
	return c.JSON(http.StatusOK, models.StatusResponse{
		Status:  "cancelled",
		Message: fmt.Sprintf("%d job(s) aborted", n),
	})
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	return data, nil
}

// sanitizeComment keeps an error message from closing the HTML comment.
func sanitizeComment(s string) string {
	return strings.ReplaceAll(s, "--", "- -")
}
