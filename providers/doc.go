// Package providers opens sessions to tool providers listed in the registry.
//
// A Session owns the provider transport and the tool catalogue negotiated
// during initialization. Sessions are scoped to a single task and must be closed
// when the task ends; Manager.Open closes the transport itself on every failure path.
package providers
