// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-backend/internal/common/utils"
)

type Handler struct {
	service Service
	hub     *Hub
	storage AttachmentStorage
}

func NewHandler(service Service, hub *Hub, storage AttachmentStorage) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		storage: storage,
	}
}

// HandleWebSocket upgrades an authenticated request into a live connection.
// Authentication happens once, here; every frame afterwards rides the
// established identity.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, _ := r.Context().Value("role").(string)
	displayName, _ := r.Context().Value("displayName").(string)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := NewClient(h.hub, conn, h.service, userID, role, displayName)
	h.hub.Register(client)
	client.Start()
}

// StartConversation finds or creates the 1:1 thread with another user.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.service.StartConversation(r.Context(), userID, &req)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, conv, http.StatusOK)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	conversations, err := h.service.ListConversations(r.Context(), userID, page, limit, includeArchived)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, conversations, http.StatusOK)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	conv, err := h.service.GetConversation(r.Context(), conversationID, userID)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, conv, http.StatusOK)
}

func (h *Handler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	if err := h.service.MarkConversationRead(r.Context(), conversationID, userID); err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.MessageResponse(w, "marked read", http.StatusOK)
}

func (h *Handler) SetArchived(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.flagHandler(w, r, func(conversationID, userID int64) error {
			return h.service.SetArchived(r.Context(), conversationID, userID, archived)
		})
	}
}

func (h *Handler) SetPinned(pinned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.flagHandler(w, r, func(conversationID, userID int64) error {
			return h.service.SetPinned(r.Context(), conversationID, userID, pinned)
		})
	}
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.flagHandler(w, r, func(conversationID, userID int64) error {
		return h.service.DeleteConversation(r.Context(), conversationID, userID)
	})
}

func (h *Handler) flagHandler(w http.ResponseWriter, r *http.Request, fn func(conversationID, userID int64) error) {
	userID := r.Context().Value("userID").(int64)
	conversationID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}
	if err := fn(conversationID, userID); err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.MessageResponse(w, "ok", http.StatusOK)
}

// GetMessages pages a conversation backward from the `before` cursor.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.ErrorResponse(w, "Invalid before cursor", http.StatusBadRequest)
			return
		}
		before = &t
	}

	messages, err := h.service.GetMessages(r.Context(), conversationID, userID, before, limit)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, messages, http.StatusOK)
}

// SendMessage is the REST path into the same append pipeline the live
// channel uses.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.SendMessage(r.Context(), userID, &req)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, message, http.StatusCreated)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.EditMessage(r.Context(), messageID, userID, req.Content)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, message, http.StatusOK)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID, err := pathID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteMessage(r.Context(), messageID, userID); err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.MessageResponse(w, "deleted", http.StatusOK)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var conversationID *int64
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}
		conversationID = &id
	}

	count, err := h.service.UnreadCount(r.Context(), userID, conversationID)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, map[string]int{"unread_count": count}, http.StatusOK)
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	query := r.URL.Query().Get("q")

	var conversationID *int64
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}
		conversationID = &id
	}

	messages, err := h.service.SearchMessages(r.Context(), userID, query, conversationID)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, messages, http.StatusOK)
}

// UploadAttachment stores a file and returns the attachment record to embed
// in a later send.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("userID").(int64); !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.ErrorResponse(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	attachment, err := h.storage.Upload(r.Context(), header.Filename, file)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), StatusCode(err))
		return
	}
	utils.SuccessResponse(w, attachment, http.StatusCreated)
}

func (h *Handler) OnlineStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	utils.SuccessResponse(w, map[string]bool{"online": h.hub.IsOnline(userID)}, http.StatusOK)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.SuccessResponse(w, map[string]interface{}{
		"status":             "ok",
		"active_connections": h.hub.ClientCount(),
	}, http.StatusOK)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
