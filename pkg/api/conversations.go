package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"courierdb/pkg/auth"
	"courierdb/pkg/keys"
	"courierdb/pkg/logger"
	"courierdb/pkg/models"
	"courierdb/pkg/store"
	"courierdb/pkg/telemetry"
	"courierdb/pkg/utils"
	"courierdb/pkg/validation"
)

// MessageView is a message decorated with render-time state: whether
// the caller may still edit it and what its reply reference currently
// resolves to.
type MessageView struct {
	models.Message
	CanEdit      bool                 `json:"can_edit"`
	ReplyPreview *models.ReplyPreview `json:"reply_preview,omitempty"`
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	sums, err := a.Index.Conversations(r.Context(), user)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"conversations": sums})
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	peer := mux.Vars(r)["peer"]
	if err := validation.ValidateParticipants(user, peer); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var d store.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h := a.Engine.BeginSend(user, peer, d)
	m, err := a.Engine.CommitSend(r.Context(), h)
	if err != nil {
		telemetry.IncRolledBack()
		writeDomainErr(w, err)
		return
	}
	telemetry.IncCommitted()
	telemetry.IncAppended()
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	peer := mux.Vars(r)["peer"]
	if err := validation.ValidateParticipants(user, peer); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	convKey := keys.ConvKey(user, peer)

	opts := store.ListOptions{
		SinceID:  r.URL.Query().Get("since"),
		AfterPos: r.URL.Query().Get("after"),
		Limit:    a.pageSize(),
	}
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			opts.Limit = lim
		}
	}

	msgs, next, err := a.Store.List(r.Context(), convKey, opts)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	// fetching the conversation implies the client now has the
	// payload; failures here do not fail the read
	if n, derr := a.Tracker.MarkDelivered(r.Context(), convKey, user); derr != nil {
		logger.Warn("mark_delivered_failed", "conversation", convKey, "user", user, "error", derr)
	} else {
		telemetry.AddTransitions(string(models.StatusDelivered), n)
	}

	now := a.Guard.Clock().Now()
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m, CanEdit: a.Guard.CanEdit(m, user, now)}
		if m.ReplyTo != "" {
			p := a.Store.ReplyPreview(r.Context(), m.ReplyTo)
			v.ReplyPreview = &p
		}
		out = append(out, v)
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"conversation": convKey,
		"messages":     out,
		"next":         next,
	})
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	peer := mux.Vars(r)["peer"]
	if err := validation.ValidateParticipants(user, peer); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		UpTo string `json:"up_to,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	convKey := keys.ConvKey(user, peer)
	n, err := a.Tracker.MarkRead(r.Context(), convKey, user, body.UpTo)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	telemetry.AddTransitions(string(models.StatusRead), n)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"marked": n})
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	peer := mux.Vars(r)["peer"]
	if err := validation.ValidateParticipants(user, peer); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	convKey := keys.ConvKey(user, peer)
	n, err := a.Index.UnreadCount(r.Context(), convKey, user)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"conversation": convKey, "unread": n})
}

func (a *API) pageSize() int {
	if a.PageSize > 0 {
		return a.PageSize
	}
	return DefaultPageSize
}
