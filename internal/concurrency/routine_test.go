package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafeGoRunsFunction(t *testing.T) {
	done := make(chan struct{})

	SafeGo(func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function never ran")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	reports := make(chan PanicReport, 1)

	SafeGo(func() { panic("boom") }, func(r PanicReport) { reports <- r })

	select {
	case r := <-reports:
		assert.Equal(t, "boom", r.Value)
		assert.NotEmpty(t, r.Stack)
	case <-time.After(time.Second):
		t.Fatal("panic handler never invoked")
	}
}

func TestSafeGoRecoversWithNilHandler(t *testing.T) {
	entered := make(chan struct{})

	SafeGo(func() {
		close(entered)
		panic("boom")
	}, nil)

	<-entered
	// Give the deferred recovery a beat; an unrecovered panic would kill
	// the test binary.
	time.Sleep(10 * time.Millisecond)
}
