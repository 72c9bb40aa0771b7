// Package tools translates provider tool catalogues into function-calling schemas
// and dispatches the model's tool calls back to the owning provider session.
package tools
