// Package middlewares provides net/http middleware for the bedrock admin
// endpoint and for application servers running in workers.
//
// # Request ID
//
// RequestID assigns a unique ID to each request for tracing. It checks
// incoming headers for an existing ID or generates a UUID:
//
//	r := chi.NewRouter()
//	r.Use(middlewares.RequestID())
//
// Use RequestIDExtractor with logger.WithExtractors to add request_id to
// every record logged with the request context.
//
// # Recover
//
// Recover turns panics into 500 responses and logs them with a stack trace:
//
//	r.Use(middlewares.Recover(log, middlewares.WithRecoverStackSize(8192)))
//
// # Access log
//
// AccessLog writes one record per request, usually to the access category:
//
//	r.Use(middlewares.AccessLog(app.CategoryLogger(logger.CategoryAccess)))
package middlewares
