package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := New(CodePublishBatchMissing, "batch b-1 is missing")
	if !stderrors.Is(err, New(CodePublishBatchMissing, "other message")) {
		t.Fatal("errors with the same code should match")
	}
	if stderrors.Is(err, New(CodePublishNoBatches, "batch b-1 is missing")) {
		t.Fatal("errors with different codes should not match")
	}
}

func TestCodeOf_WalksWrappedChain(t *testing.T) {
	inner := New(CodeCanonUnknownCapability, "capability cap-9 is not cataloged")
	wrapped := fmt.Errorf("process mentions: %w", inner)

	if got := CodeOf(wrapped); got != CodeCanonUnknownCapability {
		t.Fatalf("code = %q, want %q", got, CodeCanonUnknownCapability)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCode_Taxonomy(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodePublishSessionRequired, codes.InvalidArgument},
		{CodePublishInvalidTimestamp, codes.InvalidArgument},
		{CodeSearchRetryJobRequired, codes.InvalidArgument},
		{CodePublishNoBatches, codes.FailedPrecondition},
		{CodePublishBatchAlreadyPrepared, codes.FailedPrecondition},
		{CodeCanonCapabilitySeverityMismatch, codes.FailedPrecondition},
		{CodePublishUnknownSession, codes.NotFound},
		{CodePublishBatchMissing, codes.NotFound},
		{CodeUnknown, codes.Internal},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.want {
			t.Fatalf("GRPCCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestToGRPCStatus_AttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodePublishBatchMissing, "batch is missing", map[string]string{
		"batch_id": "b-1",
	})

	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a grpc status error")
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.NotFound)
	}
	if len(st.Details()) != 1 {
		t.Fatalf("details = %d, want 1", len(st.Details()))
	}
}
