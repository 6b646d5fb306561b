package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("frame %d dropped", 7)
	if got != "frame %d dropped" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op, not a nil func
	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	SetLogger(nil)
	Logf("should be swallowed")
	if called {
		t.Error("no-op logger invoked previous callback")
	}
	if Logf == nil {
		t.Error("Logf is nil after SetLogger(nil)")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to log.Printf")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("startup: %s", "ok")
}
