// Package api exposes the cost metering engine over HTTP: event
// recording, realtime spend, admission checks, budget configuration,
// tier plans and historical reports.
package api
