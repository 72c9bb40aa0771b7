// Package registry locates and parses the provider registry document:
// the mapping from provider name to its launch or connect parameters.
//
// The registry is never cached. Every call to Load searches the candidate
// locations again and re-parses the first document found, so edits are
// visible to the very next task.
package registry
