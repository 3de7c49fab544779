package output

import (
	"bytes"
	"testing"

	"github.com/QKD-VITAP/qkdctl/internal/terminal"
	"github.com/QKD-VITAP/qkdctl/internal/testutil"
)

// TestStatusReportRendering pins the plain-text layout of a typical
// simulation report so formatting changes are deliberate.
func TestStatusReportRendering(t *testing.T) {
	var stdout, stderr bytes.Buffer

	w := NewWriter(&stdout, &stderr, &terminal.Info{IsTTY: false})

	w.Print("Simulation: %s\n", "sim-42")
	w.Print("Status:     %s\n", "completed")
	w.Print("Progress:   %d%%\n", 100)
	w.Println()
	w.Print("  %-18s %v\n", "qber", 0.021)
	w.Print("  %-18s %v\n", "final_key_length", 412)
	w.Success("Simulation sim-42 completed")
	w.Warning("Attack went undetected")
	w.Info("Run 'qkdctl simulate history' to list previous runs")
	w.Muted("No further simulations queued")

	testutil.AssertGolden(t, stdout.String(), "status_report.golden")

	if stderr.Len() != 0 {
		t.Errorf("unexpected stderr output: %q", stderr.String())
	}
}
