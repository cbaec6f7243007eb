package controller

import (
	"context"
	"net/http"

	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/service"
)

type ContactAPI interface {
	CreateClient(ctx context.Context, ownerID int, c *model.Client) error
	ListClients(ctx context.Context, ownerID int) ([]model.Client, error)
	GetClient(ctx context.Context, ownerID, id int) (*model.Client, error)
	DeleteClient(ctx context.Context, ownerID, id int) error
	CreateMessage(ctx context.Context, ownerID int, m *model.Message) error
	ListMessages(ctx context.Context, ownerID int) ([]model.Message, error)
	GetMessage(ctx context.Context, ownerID, id int) (*model.Message, error)
	UpdateMessage(ctx context.Context, ownerID int, m *model.Message) error
	DeleteMessage(ctx context.Context, ownerID, id int) error
}

type ContactController struct {
	Service ContactAPI
}

func (c *ContactController) CreateClient(w http.ResponseWriter, r *http.Request) {
	var body model.Client
	if !decode(w, r, &body) {
		return
	}
	if err := c.Service.CreateClient(r.Context(), userID(r), &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (c *ContactController) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := c.Service.ListClients(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": clients})
}

func (c *ContactController) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid client id")
		return
	}
	client, err := c.Service.GetClient(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (c *ContactController) DeleteClient(w http.ResponseWriter, r *http.Request) {
	c.remove(w, r, c.Service.DeleteClient)
}

func (c *ContactController) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var body model.Message
	if !decode(w, r, &body) {
		return
	}
	if err := c.Service.CreateMessage(r.Context(), userID(r), &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (c *ContactController) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := c.Service.ListMessages(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": messages})
}

func (c *ContactController) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid message id")
		return
	}
	m, err := c.Service.GetMessage(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (c *ContactController) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid message id")
		return
	}
	var body model.Message
	if !decode(w, r, &body) {
		return
	}
	body.ID = id
	if err := c.Service.UpdateMessage(r.Context(), userID(r), &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (c *ContactController) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	c.remove(w, r, c.Service.DeleteMessage)
}

func (c *ContactController) remove(w http.ResponseWriter, r *http.Request, op func(context.Context, int, int) error) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if err := op(r.Context(), userID(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var _ ContactAPI = (*service.ContactService)(nil)
