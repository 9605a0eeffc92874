package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestStagedWrapping(t *testing.T) {
	base := fmt.Errorf("upload rejected")
	err := Staged(StageUpload, base)

	if StageOf(err) != StageUpload {
		t.Fatalf("expected upload stage, got %q", StageOf(err))
	}
	if !stderrors.Is(err, base) {
		t.Fatalf("staged error should unwrap to its cause")
	}
	if Staged(StageUpload, nil) != nil {
		t.Fatalf("staging nil should stay nil")
	}
}

func TestStageOfUnstaged(t *testing.T) {
	if got := StageOf(fmt.Errorf("plain")); got != "" {
		t.Fatalf("unstaged error should report empty stage, got %q", got)
	}
	if got := StageOf(nil); got != "" {
		t.Fatalf("nil error should report empty stage, got %q", got)
	}
}

func TestStagedPreservesSentinels(t *testing.T) {
	err := Staged(StageDerive, fmt.Errorf("%w: doc/n1", ErrZeroByteArtifact))
	if !stderrors.Is(err, ErrZeroByteArtifact) {
		t.Fatalf("sentinel lost through staging: %v", err)
	}
}
