package router

import (
	"github.com/gorilla/mux"
)

// Controller is anything that mounts routes on the shared router.
type Controller interface {
	Register(router *mux.Router)
}
