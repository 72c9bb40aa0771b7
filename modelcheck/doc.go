// Package modelcheck validates that a requested model is available on the
// model host before a task starts. Results are cached per host for a short
// time, so consecutive tasks do not query the listing endpoint each time.
package modelcheck
