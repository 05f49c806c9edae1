package handlers

import (
	"errors"
	"net/http"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/models"
	"github.com/Yulian302/lfusys-services-uploads/services"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const msgUploaded = "uploaded successfully"

type UploadsHandler struct {
	sessionService    services.SessionService
	completionService services.UploadCompletionService
	fileService       services.FileService

	validate *validator.Validate
	logger   logger.Logger
}

func NewUploadsHandler(
	sessSvc services.SessionService,
	completionSvc services.UploadCompletionService,
	fileSvc services.FileService,
	l logger.Logger,
) *UploadsHandler {
	return &UploadsHandler{
		sessionService:    sessSvc,
		completionService: completionSvc,
		fileService:       fileSvc,
		validate:          validator.New(),
		logger:            l,
	}
}

func (h *UploadsHandler) CreateMultipart(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMultipartRequest
	if !h.decode(w, r, &req, apperror.MsgUploadFailed) {
		return
	}

	session, auths, err := h.sessionService.CreateSession(r.Context(), req.FileName, req.FileType, req.ChunkCount)
	if err != nil {
		h.fail(w, r, err, apperror.MsgUploadFailed)
		return
	}

	urls := make([]string, len(auths))
	for i, a := range auths {
		urls[i] = a.URL
	}
	render.JSON(w, r, models.CreateMultipartResponse{
		UploadId:      session.UploadId,
		PreSignedUrls: urls,
	})
}

func (h *UploadsHandler) CompleteMultipart(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteMultipartRequest
	if !h.decode(w, r, &req, apperror.MsgUploadFailed) {
		return
	}

	downloadURL, err := h.completionService.CompleteSession(r.Context(), req.FileName, req.UploadId, req.Parts, req.FileSize)
	if err != nil {
		h.fail(w, r, err, apperror.MsgUploadFailed)
		return
	}

	render.JSON(w, r, models.CompleteMultipartResponse{
		Message:     msgUploaded,
		DownloadUrl: downloadURL,
	})
}

func (h *UploadsHandler) AbortMultipart(w http.ResponseWriter, r *http.Request) {
	var req models.AbortMultipartRequest
	if !h.decode(w, r, &req, apperror.MsgUploadFailed) {
		return
	}

	if err := h.sessionService.AbortSession(r.Context(), req.FileName, req.UploadId); err != nil {
		h.fail(w, r, err, apperror.MsgUploadFailed)
		return
	}
	render.JSON(w, r, models.StatusResponse{Status: "aborted"})
}

func (h *UploadsHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.fileService.ListFiles(r.Context())
	if err != nil {
		h.fail(w, r, err, apperror.MsgFetchFailed)
		return
	}
	render.JSON(w, r, files)
}

func (h *UploadsHandler) decode(w http.ResponseWriter, r *http.Request, v any, msg string) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		h.fail(w, r, apperror.New("decodeRequest", apperror.ErrInvalidInput, err), msg)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.fail(w, r, apperror.New("validateRequest", apperror.ErrInvalidInput, err), msg)
		return false
	}
	return true
}

// fail logs the cause and answers with a generic message.
func (h *UploadsHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	h.logger.Error("request failed", "path", r.URL.Path, "status", status, "request_id", requestID(r), "error", err)
	render.Status(r, status)
	render.JSON(w, r, models.ErrorResponse{Error: msg})
}

func statusFor(err error) int {
	if errors.Is(err, apperror.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
