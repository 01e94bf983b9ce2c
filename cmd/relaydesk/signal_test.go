package main

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestSignalHandlerCancelsContext(t *testing.T) {
	s := NewSignalHandler(context.Background())
	s.Start()
	defer s.Stop()

	s.sigChan <- syscall.SIGTERM

	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after signal")
	}
}

func TestSignalHandlerStopCancelsContext(t *testing.T) {
	s := NewSignalHandler(context.Background())
	s.Start()
	s.Stop()

	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Stop")
	}
}
