package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llmwui/llm-wui/internal/assets"
	"github.com/llmwui/llm-wui/internal/core"
	"github.com/llmwui/llm-wui/internal/scratch"
	"github.com/llmwui/llm-wui/internal/store"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserID returns the authenticated owner id set by JWTAuthMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

type APIHandler struct {
	repo     store.Repository
	users    *core.UserService
	chats    *core.ChatService
	settings *core.SettingsService
	files    scratch.Store
	manifest *assets.Manifest
	logger   *slog.Logger
}

func NewAPIHandler(
	repo store.Repository,
	users *core.UserService,
	chats *core.ChatService,
	settings *core.SettingsService,
	files scratch.Store,
	manifest *assets.Manifest,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		repo:     repo,
		users:    users,
		chats:    chats,
		settings: settings,
		files:    files,
		manifest: manifest,
		logger:   logger,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Fail(w, http.StatusUnauthorized, core.StatusError, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		user, err := h.users.Authenticate(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, core.ErrInvalidCredentials) {
				Fail(w, http.StatusUnauthorized, core.StatusError, "Invalid token")
				return
			}
			h.logger.Error("failed to resolve token owner", "error", err)
			Fail(w, http.StatusInternalServerError, core.StatusError, "Failed to process user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		Fail(w, http.StatusServiceUnavailable, core.StatusUnavailable, "database unreachable")
		return
	}
	OK(w, "healthy")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.users.Signup(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Username and password are required")
		return
	case errors.Is(err, core.ErrUserExists):
		Fail(w, http.StatusConflict, core.StatusError, "Username is taken")
		return
	case err != nil:
		h.logger.Error("failed to create user", "username", req.Username, "error", err)
		Fail(w, http.StatusInternalServerError, core.StatusError, "Failed to create user")
		return
	}

	JSON(w, http.StatusCreated, envelope{Status: core.StatusOK, Response: user})
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid request body: "+err.Error())
		return
	}

	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, core.ErrInvalidCredentials) {
			h.logger.Error("login failed", "username", req.Username, "error", err)
		}
		Fail(w, http.StatusUnauthorized, core.StatusError, "Invalid credentials")
		return
	}
	OK(w, map[string]string{"token": token})
}

func (h *APIHandler) AssetsHandler(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]interface{}{
		"debug":     h.manifest.DevMode(),
		"asset_url": h.manifest.BaseURL,
		"entries":   h.manifest.EntryPoints(),
	})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())

	chats, err := h.chats.ListChats(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to list chats", "owner", owner, "error", err)
		Fail(w, http.StatusInternalServerError, core.StatusError, "Failed to list chats")
		return
	}
	OK(w, chats)
}

type chatResponse struct {
	ID        int64                `json:"id"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	Messages  []core.StoredMessage `json:"messages"`
}

func (h *APIHandler) LoadChatHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	chat, messages, err := h.chats.LoadChat(r.Context(), owner, chatID)
	if err != nil {
		h.failService(w, err, "Failed to load chat", "owner", owner, "chat_id", chatID)
		return
	}
	OK(w, chatResponse{
		ID:        chat.ID,
		Title:     chat.Title,
		CreatedAt: chat.CreatedAt,
		Messages:  messages,
	})
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	if err := h.chats.DeleteChat(r.Context(), owner, chatID); err != nil {
		h.failService(w, err, "Failed to delete chat", "owner", owner, "chat_id", chatID)
		return
	}
	OK(w, "Success")
}

type sendMessageRequest struct {
	Counter     int64    `json:"counter"`
	SearchWeb   bool     `json:"search_web"`
	Model       string   `json:"model"`
	Message     string   `json:"message"`
	Attachments []string `json:"attachments"`
}

type sendMessageResponse struct {
	ChatID          int64       `json:"chat_id"`
	Title           string      `json:"title"`
	Reply           string      `json:"reply"`
	Search          core.Status `json:"search,omitempty"`
	RetrievedChunks int         `json:"retrieved_chunks"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Message content cannot be empty")
		return
	}
	for i, name := range req.Attachments {
		clean, err := scratch.CleanName(name)
		if err != nil {
			Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid attachment name")
			return
		}
		req.Attachments[i] = clean
	}

	res, err := h.chats.Send(r.Context(), owner, core.SendRequest{
		ChatID:      chatID,
		Counter:     req.Counter,
		SearchWeb:   req.SearchWeb,
		Model:       req.Model,
		Message:     req.Message,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.failService(w, err, "Failed to get a response from the model", "owner", owner, "chat_id", chatID)
		return
	}
	OK(w, sendMessageResponse{
		ChatID:          res.Chat.ID,
		Title:           res.Chat.Title,
		Reply:           res.Reply,
		Search:          res.Search,
		RetrievedChunks: res.RetrievedChunks,
	})
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	settings, err := h.settings.Get(r.Context(), owner)
	if err != nil {
		h.failService(w, err, "Failed to load settings", "owner", owner)
		return
	}
	OK(w, settings)
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())

	var req core.SettingsUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid request body: "+err.Error())
		return
	}
	settings, err := h.settings.Update(r.Context(), owner, req)
	if err != nil {
		h.failService(w, err, "Failed to update settings", "owner", owner)
		return
	}
	OK(w, settings)
}

func (h *APIHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	models, err := h.chats.ListModels(r.Context(), owner)
	if err != nil {
		h.failService(w, err, "Failed to list models", "owner", owner)
		return
	}
	OK(w, models)
}

func (h *APIHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, scratch.MaxFileSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Expected a multipart file field named file")
		return
	}
	defer file.Close()

	name, err := scratch.CleanName(header.Filename)
	if err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid file name")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, scratch.MaxFileSize+1))
	if err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Failed to read upload")
		return
	}
	if len(data) > scratch.MaxFileSize {
		Fail(w, http.StatusRequestEntityTooLarge, core.StatusInvalid, "File is too large")
		return
	}

	if err := h.files.Put(r.Context(), owner, name, data); err != nil {
		h.logger.Error("failed to store upload", "owner", owner, "file", name, "error", err)
		Fail(w, http.StatusInternalServerError, core.StatusError, "Failed to store file")
		return
	}
	JSON(w, http.StatusCreated, envelope{Status: core.StatusOK, Response: map[string]interface{}{"name": name, "size": len(data)}})
}

func (h *APIHandler) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	owner := UserID(r.Context())
	name := chi.URLParam(r, "name")

	err := h.files.Delete(r.Context(), owner, name)
	switch {
	case errors.Is(err, scratch.ErrNotFound):
		Fail(w, http.StatusNotFound, core.StatusNotFound, "File not found")
	case errors.Is(err, scratch.ErrInvalidName):
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "Invalid file name")
	case err != nil:
		h.logger.Error("failed to delete upload", "owner", owner, "file", name, "error", err)
		Fail(w, http.StatusInternalServerError, core.StatusError, "Failed to delete file")
	default:
		OK(w, "Success")
	}
}

// maxJSONBody caps request bodies other than file uploads.
const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Fail(w, http.StatusBadRequest, core.StatusInvalid, "chat id must be an integer")
		return 0, false
	}
	return id, true
}

// failService reports a service error with its status. Only unexpected
// errors are logged at error level.
func (h *APIHandler) failService(w http.ResponseWriter, err error, message string, attrs ...interface{}) {
	status := core.StatusOf(err)
	if status == core.StatusError {
		h.logger.Error(message, append(attrs, "error", err)...)
	} else {
		h.logger.Warn(message, append(attrs, "status", status, "error", err)...)
	}
	switch status {
	case core.StatusNotFound:
		message = "Chat not found"
	case core.StatusInvalid:
		message = err.Error()
	}
	Fail(w, httpStatusFor(status), status, message)
}
