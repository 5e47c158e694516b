package faultline

import (
	"runtime"
)

// ================================
// Environment Integration
// ================================

// environmentIntegration enriches every event with contexts describing the
// runtime and operating system the application runs on.
type environmentIntegration struct{}

func (ei *environmentIntegration) Name() string {
	return "Environment"
}

func (ei *environmentIntegration) SetupOnce(client *Client) {
	client.AddEventProcessor(ei.processor)
}

func (ei *environmentIntegration) processor(event *Event, _ *EventHint) *Event {
	if event.Contexts == nil {
		event.Contexts = make(map[string]interface{})
	}

	if _, ok := event.Contexts["device"]; !ok {
		event.Contexts["device"] = map[string]interface{}{
			"arch":    runtime.GOARCH,
			"num_cpu": runtime.NumCPU(),
		}
	}

	if _, ok := event.Contexts["os"]; !ok {
		event.Contexts["os"] = map[string]interface{}{
			"name": runtime.GOOS,
		}
	}

	if _, ok := event.Contexts["runtime"]; !ok {
		event.Contexts["runtime"] = map[string]interface{}{
			"name":           "go",
			"version":        runtime.Version(),
			"go_numroutines": runtime.NumGoroutine(),
			"go_maxprocs":    runtime.GOMAXPROCS(0),
			"go_numcgocalls": runtime.NumCgoCall(),
		}
	}

	return event
}
