// Package driving provides interfaces for the application's entry
// points (primary/inbound ports): the ingest, ask and extract surfaces
// consumed by the CLI and export layer.
package driving
