package debug

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestVerboseGate(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Verbose = false
	Printf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	Verbose = true
	defer func() { Verbose = false }()
	WithFields(Fields{"mid": 7}, "fragment")
	if !strings.Contains(buf.String(), "mid=7") {
		t.Errorf("expected structured field, got %q", buf.String())
	}
}
