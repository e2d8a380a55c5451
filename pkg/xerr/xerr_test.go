package xerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewNil(t *testing.T) {
	if New(CodeAssembly, nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("run: %w", New(CodeAssembly, base))

	if !IsCode(err, CodeAssembly) {
		t.Error("Expected CodeAssembly through wrapping")
	}
	if IsCode(err, CodeThreshold) {
		t.Error("Did not expect CodeThreshold")
	}
	if !errors.Is(err, base) {
		t.Error("Expected underlying error to be reachable")
	}
	if CodeOf(err) != CodeAssembly {
		t.Errorf("Expected assembly, got %s", CodeOf(err))
	}
	if CodeOf(base) != CodeUnknown {
		t.Errorf("Expected unknown, got %s", CodeOf(base))
	}
	if err.Error() != "run: assembly: disk full" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
