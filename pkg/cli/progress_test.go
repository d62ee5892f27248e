package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExportProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(200)
	progress.Update(50)
	progress.Finish()

	out := buf.String()
	if !strings.Contains(out, "50/200 events") {
		t.Errorf("missing count in output: %q", out)
	}
	if !strings.Contains(out, "200/200 events (100%)") {
		t.Errorf("missing completed bar: %q", out)
	}
	if !strings.Contains(out, " done") {
		t.Errorf("missing completion marker: %q", out)
	}
}

func TestExportProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	// An empty trail must not render a bar or divide by zero.
	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if out := buf.String(); strings.Contains(out, "events") {
		t.Errorf("bar rendered for empty run: %q", out)
	}
}

func TestExportProgress_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(errors.New("disk full"))

	out := buf.String()
	if !strings.Contains(out, "export failed") || !strings.Contains(out, "disk full") {
		t.Errorf("failure not reported: %q", out)
	}
}

func TestExportProgress_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(1000)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(base int64) {
			for j := int64(0); j < 100; j++ {
				progress.Update(base*100 + j)
			}
			done <- struct{}{}
		}(int64(i))
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	progress.Finish()

	if buf.Len() == 0 {
		t.Error("no output from concurrent updates")
	}
}

func TestNewProgressReporter_NilWriter(t *testing.T) {
	progress := NewProgressReporter(nil)
	if progress == nil {
		t.Fatal("NewProgressReporter(nil) returned nil")
	}
	progress.Start(10)
	progress.Update(5)
	progress.Finish()
}
