package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(mailings *MailingController, contacts *ContactController) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Route("/mailings", func(r chi.Router) {
			r.Get("/", mailings.ListMailings)
			r.Post("/", mailings.CreateMailing)
			r.Post("/start", mailings.StartAll)
			r.Post("/stop", mailings.StopAll)
			r.Get("/{id}", mailings.GetMailing)
			r.Delete("/{id}", mailings.DeleteMailing)
			r.Post("/{id}/enable", mailings.EnableMailing)
			r.Post("/{id}/disable", mailings.DisableMailing)
		})
		r.Get("/logs", mailings.ListLogs)
		r.Post("/logout", mailings.Logout)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", contacts.ListClients)
			r.Post("/", contacts.CreateClient)
			r.Get("/{id}", contacts.GetClient)
			r.Delete("/{id}", contacts.DeleteClient)
		})
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", contacts.ListMessages)
			r.Post("/", contacts.CreateMessage)
			r.Get("/{id}", contacts.GetMessage)
			r.Put("/{id}", contacts.UpdateMessage)
			r.Delete("/{id}", contacts.DeleteMessage)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}
