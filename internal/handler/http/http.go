// Package http exposes the core controllers over a plain JSON HTTP API.
// The acting principal is resolved from the Authorization bearer token.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/screenlogapp/screenlog/internal/controller/activity"
	"github.com/screenlogapp/screenlog/internal/controller/comments"
	"github.com/screenlogapp/screenlog/internal/controller/ledger"
	"github.com/screenlogapp/screenlog/internal/controller/lists"
	"github.com/screenlogapp/screenlog/internal/controller/notification"
	"github.com/screenlogapp/screenlog/internal/controller/profile"
	"github.com/screenlogapp/screenlog/internal/controller/recommend"
	"github.com/screenlogapp/screenlog/internal/controller/social"
	"github.com/screenlogapp/screenlog/internal/session"
	"github.com/screenlogapp/screenlog/pkg/model"
	"go.uber.org/zap"
)

const defaultFeedLimit = 20

type Handler struct {
	ledger        *ledger.Controller
	social        *social.Controller
	notifications *notification.Controller
	activity      *activity.Controller
	lists         *lists.Controller
	recommend     *recommend.Engine
	comments      *comments.Controller
	profiles      *profile.Controller
	secret        session.SecretProvider
	logger        *zap.Logger
}

// New creates the HTTP handler set over the wired controllers.
func New(
	ledgerCtrl *ledger.Controller,
	socialCtrl *social.Controller,
	notificationCtrl *notification.Controller,
	activityCtrl *activity.Controller,
	listsCtrl *lists.Controller,
	recommendEngine *recommend.Engine,
	commentsCtrl *comments.Controller,
	profileCtrl *profile.Controller,
	secret session.SecretProvider,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ledger:        ledgerCtrl,
		social:        socialCtrl,
		notifications: notificationCtrl,
		activity:      activityCtrl,
		lists:         listsCtrl,
		recommend:     recommendEngine,
		comments:      commentsCtrl,
		profiles:      profileCtrl,
		secret:        secret,
		logger:        logger,
	}
}

// Register attaches all routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/media", h.handleMediaByFlag)
	mux.HandleFunc("/stats", h.handleStats)
	mux.HandleFunc("/follow", h.handleFollow)
	mux.HandleFunc("/unfollow", h.handleUnfollow)
	mux.HandleFunc("/following", h.handleFollowing)
	mux.HandleFunc("/followers", h.handleFollowers)
	mux.HandleFunc("/notifications", h.handleNotifications)
	mux.HandleFunc("/notifications/read", h.handleMarkRead)
	mux.HandleFunc("/notifications/read-all", h.handleMarkAllRead)
	mux.HandleFunc("/feed", h.handleFeed)
	mux.HandleFunc("/lists", h.handleLists)
	mux.HandleFunc("/lists/items", h.handleListItems)
	mux.HandleFunc("/recommendations", h.handleRecommendations)
	mux.HandleFunc("/comments", h.handleComments)
	mux.HandleFunc("/users", h.handleUsers)
	mux.HandleFunc("/profile", h.handleProfile)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := h.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		entry, err := h.ledger.GetStatus(r.Context(),
			who.ID, model.MediaType(r.URL.Query().Get("mediaType")), r.URL.Query().Get("mediaId"))
		if err != nil {
			h.fail(w, err)
			return
		}
		h.respond(w, entry)
	case http.MethodPost:
		var req struct {
			Media model.MediaRef `json:"media"`
			ledger.StatusUpdate
		}
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.ledger.SetStatus(r.Context(), who, req.Media, req.StatusUpdate); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleMediaByFlag(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	entries, err := h.ledger.ListByFlag(r.Context(), who.ID, ledger.Flag(r.URL.Query().Get("flag")))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, entries)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = who.ID
	}
	stats, err := h.ledger.Stats(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, stats)
}

func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodPost)
	if !ok {
		return
	}
	var req struct {
		TargetID string `json:"targetId"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.social.Follow(r.Context(), who, req.TargetID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodPost)
	if !ok {
		return
	}
	var req struct {
		TargetID string `json:"targetId"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.social.Unfollow(r.Context(), who, req.TargetID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFollowing(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = who.ID
	}
	users, err := h.social.ListFollowing(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, users)
}

func (h *Handler) handleFollowers(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = who.ID
	}
	users, err := h.social.ListFollowers(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, users)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	notifications, err := h.notifications.Recent(r.Context(), who.ID, queryInt(r, "limit", 10))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, notifications)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, http.MethodPost); !ok {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), req.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodPost)
	if !ok {
		return
	}
	if err := h.notifications.MarkAllRead(r.Context(), who.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	following, err := h.social.ListFollowing(r.Context(), who.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	ids := make([]string, len(following))
	for i, u := range following {
		ids[i] = u.ID
	}
	feed, err := h.activity.FeedFor(r.Context(), ids, queryInt(r, "limit", defaultFeedLimit))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, feed)
}

func (h *Handler) handleLists(w http.ResponseWriter, r *http.Request) {
	who, ok := h.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			userID = who.ID
		}
		if listID := r.URL.Query().Get("listId"); listID != "" {
			list, err := h.lists.Get(r.Context(), userID, listID)
			if err != nil {
				h.fail(w, err)
				return
			}
			if list == nil {
				http.Error(w, "list not found", http.StatusNotFound)
				return
			}
			h.respond(w, list)
			return
		}
		userLists, err := h.lists.ListFor(r.Context(), userID)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.respond(w, userLists)
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			IsPublic    bool   `json:"isPublic"`
		}
		if !h.decode(w, r, &req) {
			return
		}
		id, err := h.lists.Create(r.Context(), who, req.Name, req.Description, req.IsPublic)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.respond(w, map[string]string{"id": id})
	case http.MethodDelete:
		if err := h.lists.Delete(r.Context(), who, r.URL.Query().Get("listId")); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	who, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		ListID string         `json:"listId"`
		Media  model.MediaRef `json:"media"`
	}
	switch r.Method {
	case http.MethodPost:
		if !h.decode(w, r, &req) {
			return
		}
		added, err := h.lists.AddItem(r.Context(), who, req.ListID, req.Media)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.respond(w, map[string]bool{"added": added})
	case http.MethodDelete:
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.lists.RemoveItem(r.Context(), who, req.ListID, req.Media); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	who, ok := h.require(w, r, http.MethodGet)
	if !ok {
		return
	}
	entries, err := h.ledger.Entries(r.Context(), who.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	candidates, err := h.recommend.ForUser(r.Context(), entries)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, candidates)
}

func (h *Handler) handleComments(w http.ResponseWriter, r *http.Request) {
	who, ok := h.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.comments.ListComments(r.Context(),
			model.MediaType(r.URL.Query().Get("mediaType")), r.URL.Query().Get("mediaId"))
		if err != nil {
			h.fail(w, err)
			return
		}
		h.respond(w, list)
	case http.MethodPost:
		var req struct {
			Media model.MediaRef `json:"media"`
			Text  string         `json:"text"`
		}
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.comments.AddComment(r.Context(), who, req.Media, req.Text); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, http.MethodGet); !ok {
		return
	}
	users, err := h.profiles.All(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, users)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	who, ok := h.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			userID = who.ID
		}
		p, err := h.profiles.Get(r.Context(), userID)
		if err != nil {
			h.fail(w, err)
			return
		}
		if p == nil {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		h.respond(w, p)
	case http.MethodPost:
		var req struct {
			DisplayName string `json:"displayName"`
			Bio         string `json:"bio"`
		}
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.profiles.Update(r.Context(), who, req.DisplayName, req.Bio); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return model.Principal{}, false
	}
	who, err := session.FromToken(token, h.secret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return model.Principal{}, false
	}
	return who, true
}

func (h *Handler) require(w http.ResponseWriter, r *http.Request, method string) (model.Principal, bool) {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return model.Principal{}, false
	}
	return h.principal(w, r)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidRating),
		errors.Is(err, ledger.ErrRatingRequiresWatched),
		errors.Is(err, social.ErrSelfFollow),
		errors.Is(err, lists.ErrEmptyName),
		errors.Is(err, comments.ErrEmptyText),
		errors.Is(err, profile.ErrEmptyDisplayName):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, comments.ErrNotAuthor):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, lists.ErrNotFound),
		errors.Is(err, notification.ErrNotFound),
		errors.Is(err, comments.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
