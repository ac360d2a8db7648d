package controllers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/uptrace/bun"

	"github.com/voicespawn/backend/internal/router"
)

var _ router.Controller = (*HealthController)(nil)

type HealthController struct {
	DB *bun.DB
}

func (c *HealthController) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if c.DB != nil {
		if _, err := c.DB.ExecContext(r.Context(), "SELECT 1"); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "database unreachable")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (c *HealthController) Register(router *mux.Router) {
	router.HandleFunc("/healthz", c.handleHealthz).
		Methods(http.MethodGet)
}
