package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/makebankguru/onboarding-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса онбординга.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.signature.Middleware)

			r.Post("/webhook/korapay", h.Webhook)
		})

		r.Post("/flow/start", h.StartFlow)
		r.Post("/flow/verify", h.Verify)
		r.Post("/agreement", h.UploadAgreement)

		r.Get("/status/{userID}", h.Status)
		r.Get("/links/{userID}", h.Links)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func userIDFromURL(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
