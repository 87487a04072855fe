package process

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestResolveSidecar_AbsolutePath(t *testing.T) {
	script := writeScript(t, "exit 0")

	got, err := ResolveSidecar(script)
	if err != nil {
		t.Fatalf("ResolveSidecar() error = %v", err)
	}
	if got != script {
		t.Errorf("ResolveSidecar() = %q, want %q", got, script)
	}
}

func TestResolveSidecar_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfer-node")
	if err := os.WriteFile(path, []byte("data"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := ResolveSidecar(path); !errors.Is(err, ErrSidecarNotFound) {
		t.Errorf("ResolveSidecar() error = %v, want ErrSidecarNotFound", err)
	}
}

func TestResolveSidecar_FromPath(t *testing.T) {
	dir := t.TempDir()
	name := "mfer-node-test-lookup"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("PATH", dir)

	got, err := ResolveSidecar(name)
	if err != nil {
		t.Fatalf("ResolveSidecar() error = %v", err)
	}
	if got != filepath.Join(dir, name) {
		t.Errorf("ResolveSidecar() = %q, want %q", got, filepath.Join(dir, name))
	}
}

func TestResolveSidecar_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	if _, err := ResolveSidecar("definitely-not-a-sidecar"); !errors.Is(err, ErrSidecarNotFound) {
		t.Errorf("ResolveSidecar() error = %v, want ErrSidecarNotFound", err)
	}
	if _, err := ResolveSidecar(""); !errors.Is(err, ErrSidecarNotFound) {
		t.Errorf("ResolveSidecar(\"\") error = %v, want ErrSidecarNotFound", err)
	}
}

func TestSidecarCandidates(t *testing.T) {
	got := sidecarCandidates("mfer-node")
	triple := "mfer-node-" + runtime.GOOS + "-" + runtime.GOARCH

	if got[0] != "mfer-node" || got[1] != triple {
		t.Errorf("sidecarCandidates() = %v, want [mfer-node %s ...]", got, triple)
	}
}

func TestWaitListening_Ready(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if err := WaitListening(context.Background(), nil, ln.Addr().String(), time.Second); err != nil {
		t.Errorf("WaitListening() error = %v", err)
	}
}

func TestWaitListening_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	err = WaitListening(context.Background(), nil, addr, 300*time.Millisecond)
	if !errors.Is(err, ErrNotListening) {
		t.Errorf("WaitListening() error = %v, want ErrNotListening", err)
	}
}

func TestWaitListening_ProcessExited(t *testing.T) {
	h, err := Spawn(context.Background(), "/bin/true", nil, Options{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	collect(t, h, 5*time.Second)

	err = WaitListening(context.Background(), h, "127.0.0.1:1", 5*time.Second)
	if !errors.Is(err, ErrNotListening) {
		t.Errorf("WaitListening() error = %v, want ErrNotListening", err)
	}
}
