package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/vedran77/hadra/internal/attachment"
	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/service"
	"github.com/vedran77/hadra/internal/transport/http/middleware"
	"github.com/vedran77/hadra/pkg/validator"
)

const (
	maxUploadBytes = 128 << 20
	maxFormMemory  = 32 << 20
)

type MessageHandler struct {
	messageService *service.MessageService
	logger         *slog.Logger
}

func NewMessageHandler(messageService *service.MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, logger: logger}
}

// Send accepts a multipart form with "content" and optional "media" and "audio" files.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, domain.Direct(r.PathValue("userID")))
}

func (h *MessageHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, domain.Story())
}

func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request, to domain.Recipient) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	input := service.SendMessageInput{Content: r.FormValue("content")}
	if errs := validator.ValidateMessageContent(input.Content); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	media, closeMedia, err := formFile(r, "media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid media file")
		return
	}
	defer closeMedia()
	audio, closeAudio, err := formFile(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid audio file")
		return
	}
	defer closeAudio()
	input.Media = media
	input.Audio = audio

	// Stories only carry one media file.
	if to.IsStory() && audio != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ATTACHMENT", "Stories cannot carry a separate audio clip")
		return
	}

	msg, err := h.messageService.SendMessage(r.Context(), to, input)
	if err != nil {
		switch {
		case errors.Is(err, attachment.ErrUnsupportedType):
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE", err.Error())
		case errors.Is(err, attachment.ErrInvalidAttachment):
			writeError(w, http.StatusUnprocessableEntity, "INVALID_ATTACHMENT", err.Error())
		case errors.Is(err, attachment.ErrEncodeFailed):
			writeError(w, http.StatusBadRequest, "ATTACHMENT_FAILED", "Failed to process attachment")
		case errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message needs content or an attachment")
		case errors.Is(err, service.ErrReservedReceiver):
			writeError(w, http.StatusBadRequest, "RESERVED_RECEIVER", "Use the stories endpoint to post a story")
		case errors.Is(err, service.ErrMissingRecipient):
			writeError(w, http.StatusBadRequest, "MISSING_RECEIVER", "Receiver is required")
		default:
			h.logger.Error("send message", "user_id", middleware.GetUserID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}
	if msg == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not signed in")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	includeStories, _ := strconv.ParseBool(r.URL.Query().Get("include_stories"))

	messages, err := h.messageService.GetMessages(r.Context(), r.PathValue("userID"), includeStories)
	if err != nil {
		h.logger.Error("list messages", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.messageService.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("list conversations", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *MessageHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.messageService.GetStories(r.Context())
	if err != nil {
		h.logger.Error("list stories", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

func (h *MessageHandler) ListFriendStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.messageService.GetFriendStories(r.Context())
	if err != nil {
		h.logger.Error("list friend stories", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

func formFile(r *http.Request, field string) (*attachment.File, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return fileFromPart(file, header), func() { file.Close() }, nil
}

func fileFromPart(file io.Reader, header *multipart.FileHeader) *attachment.File {
	return &attachment.File{
		Name:    header.Filename,
		Type:    header.Header.Get("Content-Type"),
		Size:    header.Size,
		Content: file,
	}
}
