// Package application wires the configuration snapshot into the document
// store, the policy client, metrics, the HTTP router, and the server, keeping
// the main package focused on CLI parsing and orchestration.
package application
