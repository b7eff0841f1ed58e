package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"courierdb/pkg/auth"
	"courierdb/pkg/guard"
	"courierdb/pkg/index"
	"courierdb/pkg/media"
	"courierdb/pkg/models"
	"courierdb/pkg/reconcile"
	"courierdb/pkg/store"
	"courierdb/pkg/tracker"
	"courierdb/pkg/utils"
)

// API carries the wired components behind the HTTP surface.
type API struct {
	Store    *store.Store
	Index    *index.Index
	Tracker  *tracker.Tracker
	Guard    *guard.Guard
	Engine   *reconcile.Engine
	Media    media.Storage
	PageSize int
	// MaxUpload caps one attachment in bytes; zero means the default.
	MaxUpload int64
}

// DefaultPageSize bounds a message listing when the caller does not
// pass an explicit limit.
const DefaultPageSize = 100

// Router builds the /v1 route set. Identity verification wraps every
// route; the outer gateway middleware is applied by the app.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedUser)

	v1.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{peer}/messages", a.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{peer}/messages", a.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{peer}/read", a.markRead).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{peer}/unread", a.unreadCount).Methods(http.MethodGet)

	v1.HandleFunc("/messages/{id}", a.getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}", a.editMessage).Methods(http.MethodPut)
	v1.HandleFunc("/messages/{id}", a.deleteMessage).Methods(http.MethodDelete)

	v1.HandleFunc("/media", a.uploadMedia).Methods(http.MethodPost)
	return r
}

// writeDomainErr maps the domain error taxonomy onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		utils.JSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrEditWindowExpired):
		utils.JSONError(w, http.StatusConflict, "edit window expired")
	case errors.Is(err, models.ErrEmptyText):
		utils.JSONError(w, http.StatusBadRequest, "text required")
	case errors.Is(err, models.ErrInvalidContent):
		utils.JSONError(w, http.StatusBadRequest, "message needs text or media")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
