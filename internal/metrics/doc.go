// Package metrics provides build and stage metrics for the landing page engine.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be switched on without nil checks anywhere in
// the pipeline:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	orch := build.New(deps, build.WithRecorder(recorder))
//
// The daemon serves the registry through HTTPHandler when metrics are
// enabled in configuration.
package metrics
