// internal/messaging/routes.go

package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// AuthMiddleware type for the authentication middleware function
type AuthMiddleware func(http.HandlerFunc) http.HandlerFunc

// RegisterRoutes registers all messaging routes
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware AuthMiddleware) {
	// Live channel endpoint - authenticated once at upgrade
	router.HandleFunc("/ws", authMiddleware(handler.HandleWebSocket)).Methods("GET")

	api := router.PathPrefix("/api/v1/messaging").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authMiddleware(next.ServeHTTP)(w, r)
		})
	})

	// Conversation endpoints
	api.HandleFunc("/conversations", handler.StartConversation).Methods("POST")
	api.HandleFunc("/conversations", handler.ListConversations).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/conversations/{id:[0-9]+}/read", handler.MarkConversationRead).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/archive", handler.SetArchived(true)).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/unarchive", handler.SetArchived(false)).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/pin", handler.SetPinned(true)).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/unpin", handler.SetPinned(false)).Methods("POST")

	// Message endpoints
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.EditMessage).Methods("PUT", "PATCH")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/messages/unread-count", handler.UnreadCount).Methods("GET")
	api.HandleFunc("/messages/search", handler.SearchMessages).Methods("GET")

	// Attachment upload
	api.HandleFunc("/attachments", handler.UploadAttachment).Methods("POST")

	// Presence
	api.HandleFunc("/online-status", handler.OnlineStatus).Methods("GET")
}

// RegisterHealthCheck exposes the messaging health endpoint.
func RegisterHealthCheck(router *mux.Router, handler *Handler) {
	router.HandleFunc("/health/messaging", handler.HealthCheck).Methods("GET")
}
