package checkpoint

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "checkpoint")
}

func TestSaveLoad(tst *testing.T) {
	cp, err := Open(filepath.Join(tst.TempDir(), "checkpoint.db"), 3600)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer cp.Close()

	if data, err := cp.Load([]byte("g/a")); err != nil || data != nil {
		tst.Error("Expected no data, got", data, err)
	}
	if !cp.Old() {
		tst.Error("Checkpoint without saves should be old")
	}
	payload := []byte(`{"ll":[1,2]}`)
	if err := cp.Save([]byte("g/a"), payload); err != nil {
		tst.Fatal("Error: ", err)
	}
	if cp.Old() {
		tst.Error("Checkpoint was just saved")
	}
	data, err := cp.Load([]byte("g/a"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if !bytes.Equal(data, payload) {
		tst.Errorf("Expected %s, got %s", payload, data)
	}
	if data, _ := cp.Load([]byte("g/b")); data != nil {
		tst.Error("Unexpected data for another key")
	}
}

func TestNilDatabase(tst *testing.T) {
	cp := NewCheckpointIO(nil, 0)
	if err := cp.Save([]byte("k"), []byte("v")); err != nil {
		tst.Error("Error: ", err)
	}
	if data, err := cp.Load([]byte("k")); err != nil || data != nil {
		tst.Error("Nil database should store nothing")
	}
	if err := cp.Close(); err != nil {
		tst.Error("Error: ", err)
	}
}
