// Package errors provides structured error handling for the publishing
// pipeline.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Publishing schedule errors
	CodePublishSessionRequired      Code = "PUBLISH_SESSION_REQUIRED"
	CodePublishUnknownSession       Code = "PUBLISH_UNKNOWN_SESSION"
	CodePublishNoBatches            Code = "PUBLISH_NO_BATCHES"
	CodePublishBatchMissing         Code = "PUBLISH_BATCH_MISSING"
	CodePublishInvalidTimestamp     Code = "PUBLISH_INVALID_TIMESTAMP"
	CodePublishBatchAlreadyPrepared Code = "PUBLISH_BATCH_ALREADY_PREPARED"
	CodePublishInvalidTransition    Code = "PUBLISH_INVALID_STATUS_TRANSITION"

	// Search sync errors
	CodeSearchRetryJobRequired Code = "SEARCH_RETRY_JOB_REQUIRED"

	// Canon catalog errors
	CodeCanonUnknownCapability          Code = "CANON_UNKNOWN_CAPABILITY_REFERENCE"
	CodeCanonCapabilitySeverityMismatch Code = "CANON_CAPABILITY_SEVERITY_MISMATCH"
	CodeCanonCatalogInvalid             Code = "CANON_CATALOG_INVALID"

	// Extraction errors
	CodeExtractSessionRequired Code = "EXTRACT_SESSION_REQUIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodePublishSessionRequired,
		CodePublishInvalidTimestamp,
		CodeSearchRetryJobRequired,
		CodeCanonCatalogInvalid,
		CodeExtractSessionRequired:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodePublishNoBatches,
		CodePublishBatchAlreadyPrepared,
		CodePublishInvalidTransition,
		CodeCanonUnknownCapability,
		CodeCanonCapabilitySeverityMismatch:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodePublishUnknownSession,
		CodePublishBatchMissing:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
