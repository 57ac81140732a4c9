package handler

import (
	"viral-clipper/internal/appcore"
	"viral-clipper/internal/queue"
	"viral-clipper/internal/service"
	"viral-clipper/internal/taskrunner"
)

// Handler serves the clipper HTTP API. Jobs go to Queue when it is set and
// to the in-process Runner otherwise.
type Handler struct {
	Analyzer service.Analyzer
	Runner   *taskrunner.Runner
	Queue    *queue.Queue
	Hub      *appcore.EventHub
}

func NewHandler(analyzer service.Analyzer, runner *taskrunner.Runner, q *queue.Queue, hub *appcore.EventHub) Handler {
	if hub == nil && runner != nil {
		hub = runner.Hub()
	}
	if hub == nil {
		hub = appcore.NewEventHub(16)
	}
	return Handler{
		Analyzer: analyzer,
		Runner:   runner,
		Queue:    q,
		Hub:      hub,
	}
}
