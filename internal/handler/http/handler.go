package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/im-private-chat/infra/server/http/interceptors"
	"github.com/webitel/im-private-chat/internal/service"
)

// RESTHandler exposes the request/response half of the chat: backlog, read markers and presence.
type RESTHandler struct {
	logger    *slog.Logger
	backlog   service.Backlogger
	directory service.Directory
}

func NewRESTHandler(logger *slog.Logger, backlog service.Backlogger, directory service.Directory) *RESTHandler {
	return &RESTHandler{logger: logger, backlog: backlog, directory: directory}
}

// Routes returns the /api subtree. Every route requires a caller identity.
func (h *RESTHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(interceptors.NewIdentityInterceptor())

	r.Route("/messages", func(r chi.Router) {
		r.Get("/unread", h.GetUnread)
		r.Get("/unread/{friendID}", h.GetUnreadForPair)
		r.Post("/{messageID}/read", h.MarkRead)
	})
	r.Get("/friends", h.ListFriends)
	r.Post("/friends/{friendID}/read", h.MarkReadForPair)
	r.Post("/users/heartbeat", h.Heartbeat)
	r.Get("/users/online", h.Online)
	return r
}

type UnreadResponse struct {
	Messages []*service.BacklogEntry `json:"messages"`
}

type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

type FriendsResponse struct {
	Friends []*service.Friend `json:"friends"`
}

func (h *RESTHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	entries, err := h.backlog.GetUnread(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &UnreadResponse{Messages: entries})
}

func (h *RESTHandler) GetUnreadForPair(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	entries, err := h.backlog.GetUnreadForPair(r.Context(), userID, chi.URLParam(r, "friendID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &UnreadResponse{Messages: entries})
}

func (h *RESTHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	if err := h.backlog.MarkRead(r.Context(), userID, chi.URLParam(r, "messageID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) MarkReadForPair(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	n, err := h.backlog.MarkReadForPair(r.Context(), userID, chi.URLParam(r, "friendID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &MarkReadResponse{Marked: n})
}

func (h *RESTHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	friends, err := h.directory.Friends(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &FriendsResponse{Friends: friends})
}

func (h *RESTHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())

	if err := h.directory.Heartbeat(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.directory.Online())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
