// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Label values shared by recorders and callers.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	CompensationOK     = "ok"
	CompensationFailed = "failed"

	StoreDocument  = "document"
	StoreDatabase  = "database"
	StoreThumbnail = "thumbnail"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Account metrics
	IncUserRegistered()
	IncLogin(status string) // status: "success" or "failure"
	IncAuthRejected(reason string)

	// Recipe metrics
	IncRecipeCreated()
	IncRecipeEdited()
	IncCompensation(status string) // status: "ok" or "failed"
	IncThumbnailFailure()

	// ObserveStoreDuration records how long one store call took.
	ObserveStoreDuration(store, op string, duration time.Duration)

	// ObserveHTTPRequest records one served request. route is the
	// matched route pattern, never the raw path.
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}
