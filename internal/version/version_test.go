package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	t.Parallel()
	got := String()
	for _, want := range []string{"pdfrag " + Version, "commit " + Commit, "built " + BuildDate} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}
