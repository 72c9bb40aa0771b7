// Package bridge provides the task entry points: run a task with one provider,
// with several providers, or with every enabled provider of the registry.
//
// The registry is read fresh for every call, and the provider sessions
// opened for a task are closed when the task ends.
package bridge
