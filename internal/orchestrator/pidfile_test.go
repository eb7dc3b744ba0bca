package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquirePIDFile_WritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ironpostd.pid")

	pf, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}
	defer pf.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file contents = %q, want %d", data, os.Getpid())
	}
}

func TestAcquirePIDFile_RefusesWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ironpostd.pid")

	first, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("first AcquirePIDFile: %v", err)
	}
	defer first.Release()

	if _, err := AcquirePIDFile(path); err == nil {
		t.Error("expected second AcquirePIDFile to fail while the first holds the file")
	}
}

func TestPIDFile_Release_RemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ironpostd.pid")
	pf, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}

	if err := pf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed after Release")
	}
}

func TestPIDFile_Release_NilReceiverIsNoop(t *testing.T) {
	var pf *PIDFile
	if err := pf.Release(); err != nil {
		t.Errorf("Release on nil receiver returned error: %v", err)
	}
}
