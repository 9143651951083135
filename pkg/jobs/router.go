package jobs

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the job status API.
func Router(store *JobStore) chi.Router {
	r := chi.NewRouter()
	r.Get("/generation", ListJobsHandler(store))
	r.Get("/generation/{jobId}", GetJobHandler(store))
	return r
}
