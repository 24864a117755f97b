package web

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store, err := newSessionStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("newSessionStore: %v", err)
	}

	sess, err := store.Create(bytes.NewReader([]byte("payload")), "kunden.dbf")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Size != 7 {
		t.Errorf("Size = %d, want 7", sess.Size)
	}
	if _, err := os.Stat(sess.Path); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "kunden.dbf" {
		t.Errorf("Name = %q, want kunden.dbf", got.Name)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(sess.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should be removed, stat err = %v", err)
	}
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreCompanions(t *testing.T) {
	store, err := newSessionStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("newSessionStore: %v", err)
	}
	sess, err := store.Create(bytes.NewReader([]byte("table")), "kunden.dbf")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.AddCompanion(sess.ID, bytes.NewReader([]byte("memo")), "kunden.FPT"); err != nil {
		t.Fatalf("AddCompanion: %v", err)
	}
	if err := store.AddCompanion(sess.ID, bytes.NewReader(nil), "kunden.txt"); err == nil {
		t.Error("AddCompanion accepted a non-companion extension")
	}
	if err := store.AddCompanion("nope", bytes.NewReader(nil), "x.fpt"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("AddCompanion for unknown session = %v, want ErrSessionNotFound", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Companions) != 1 {
		t.Fatalf("Companions = %v, want one entry", got.Companions)
	}
	companion := got.Companions[0]
	if _, err := os.Stat(companion); err != nil {
		t.Fatalf("companion file missing: %v", err)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(companion); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("companion should be removed, stat err = %v", err)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store, err := newSessionStore(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("newSessionStore: %v", err)
	}

	sess, err := store.Create(bytes.NewReader([]byte("x")), "old.dbf")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := store.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired Get = %v, want ErrSessionNotFound", err)
	}

	store.sweep()
	if _, err := os.Stat(sess.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("sweep should remove file, stat err = %v", err)
	}
}
