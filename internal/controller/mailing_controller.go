package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/service"
)

type MailingAPI interface {
	CreateMailing(ctx context.Context, ownerID int, in service.CreateMailingInput) (*model.Mailing, error)
	GetMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error)
	ListMailings(ctx context.Context, ownerID int) (*service.MailingList, error)
	EnableMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error)
	DisableMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error)
	DeleteMailing(ctx context.Context, ownerID, id int) error
	StartAll(ctx context.Context, ownerID int) error
	StopAll(ctx context.Context, ownerID int) error
	Logout(ctx context.Context, ownerID int) error
	ListLogs(ctx context.Context, ownerID, page, pageSize int) (*service.LogPage, error)
}

type MailingController struct {
	Service MailingAPI
}

func (c *MailingController) CreateMailing(w http.ResponseWriter, r *http.Request) {
	var body service.CreateMailingInput
	if !decode(w, r, &body) {
		return
	}
	m, err := c.Service.CreateMailing(r.Context(), userID(r), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (c *MailingController) ListMailings(w http.ResponseWriter, r *http.Request) {
	list, err := c.Service.ListMailings(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *MailingController) GetMailing(w http.ResponseWriter, r *http.Request) {
	c.withMailing(w, r, c.Service.GetMailing)
}

func (c *MailingController) EnableMailing(w http.ResponseWriter, r *http.Request) {
	c.withMailing(w, r, c.Service.EnableMailing)
}

func (c *MailingController) DisableMailing(w http.ResponseWriter, r *http.Request) {
	c.withMailing(w, r, c.Service.DisableMailing)
}

func (c *MailingController) withMailing(w http.ResponseWriter, r *http.Request, op func(context.Context, int, int) (*model.Mailing, error)) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid mailing id")
		return
	}
	m, err := op(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (c *MailingController) DeleteMailing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid mailing id")
		return
	}
	if err := c.Service.DeleteMailing(r.Context(), userID(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartAll, StopAll and Logout answer 202: the change is applied by a worker.
func (c *MailingController) StartAll(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, c.Service.StartAll)
}

func (c *MailingController) StopAll(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, c.Service.StopAll)
}

func (c *MailingController) Logout(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, c.Service.Logout)
}

func (c *MailingController) enqueue(w http.ResponseWriter, r *http.Request, op func(context.Context, int) error) {
	if err := op(r.Context(), userID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (c *MailingController) ListLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	logs, err := c.Service.ListLogs(r.Context(), userID(r), page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

var _ MailingAPI = (*service.MailingService)(nil)
