package realtime

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter exposes the health probe and the report change stream.
func NewRouter(reports http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.Handle("/realtime/reports", reports).Methods("GET")
	return r
}
