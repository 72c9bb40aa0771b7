// Package llmfactory builds model gateways for the configured model host.
package llmfactory
