package frame

import (
	"testing"

	"github.com/tturner/labctl/internal/command"
)

func mustSpec(t *testing.T, r command.Record) command.Spec {
	t.Helper()
	s, err := command.NewSpec(r)
	if err != nil {
		t.Fatalf("NewSpec(%+v): %v", r, err)
	}
	return s
}

func intPtr(v int) *int { return &v }
