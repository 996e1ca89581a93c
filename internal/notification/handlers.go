// internal/notification/handlers.go

package notification

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-backend/internal/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterToken(r.Context(), userID, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.SuccessResponse(w, map[string]string{"status": "registered"}, http.StatusOK)
}

func (h *Handler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.Context().Value("userID").(int64); !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := mux.Vars(r)["token"]
	if err := h.service.UnregisterToken(r.Context(), token); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utils.SuccessResponse(w, map[string]string{"status": "unregistered"}, http.StatusOK)
}

type AuthMiddleware func(http.HandlerFunc) http.HandlerFunc

// RegisterRoutes registers push-token routes.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware AuthMiddleware) {
	api := router.PathPrefix("/api/v1/notifications").Subrouter()
	api.HandleFunc("/push-tokens", authMiddleware(handler.RegisterPushToken)).Methods("POST")
	api.HandleFunc("/push-tokens/{token}", authMiddleware(handler.UnregisterPushToken)).Methods("DELETE")
}
