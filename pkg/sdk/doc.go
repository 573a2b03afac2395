// Package sdk is the embeddable tabledex client. It wires the connection
// manager, embedding service and usecase services in-process, so Go
// programs can use the table and search operations without running the
// HTTP server. Every operation returns the same result envelope the HTTP
// API serves.
package sdk
