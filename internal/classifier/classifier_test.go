package classifier

import (
	"bytes"
	"errors"
	"testing"
)

func TestDiagnostic(t *testing.T) {
	t.Run("prefers stderr output", func(t *testing.T) {
		stderr := bytes.NewBufferString("  Missing reference data\n")
		got := diagnostic([]string{"lineage_wf", "-x", "fa"}, stderr, errors.New("exit status 1"))
		want := "checkm lineage_wf: Missing reference data"
		if got != want {
			t.Errorf("diagnostic = %q, want %q", got, want)
		}
	})

	t.Run("falls back to the error", func(t *testing.T) {
		got := diagnostic([]string{"qa"}, &bytes.Buffer{}, errors.New("exit status 127"))
		want := "checkm qa: exit status 127"
		if got != want {
			t.Errorf("diagnostic = %q, want %q", got, want)
		}
	})
}
