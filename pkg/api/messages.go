package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"courierdb/pkg/auth"
	"courierdb/pkg/telemetry"
	"courierdb/pkg/utils"
)

func (a *API) getMessage(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	m, _, err := a.Store.GetByID(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if m.Sender != user && m.Receiver != user {
		// non-participants cannot see the message, or learn it exists
		utils.JSONError(w, http.StatusNotFound, "not found")
		return
	}
	v := MessageView{Message: m, CanEdit: a.Guard.CanEdit(m, user, a.Guard.Clock().Now())}
	if m.ReplyTo != "" {
		p := a.Store.ReplyPreview(r.Context(), m.ReplyTo)
		v.ReplyPreview = &p
	}
	_ = utils.JSONWrite(w, http.StatusOK, v)
}

func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := a.Guard.ApplyEdit(r.Context(), id, user, body.Text)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	telemetry.IncEdited()
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.Guard.Delete(r.Context(), id, user); err != nil {
		writeDomainErr(w, err)
		return
	}
	telemetry.IncDeleted()
	w.WriteHeader(http.StatusNoContent)
}
