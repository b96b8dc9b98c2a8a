// Package registry groups the monitor.Store backends: postgres for
// production, sqlite for single-node deployments and memory for tests and
// development.
package registry
