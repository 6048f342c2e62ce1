package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	ctx := context.Background()

	loc, err := store.Put(ctx, "charts", "abc", "image/png", []byte("payload"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if loc.Category != "charts" || loc.ID != "abc" {
		t.Errorf("location = %+v, want charts/abc", loc)
	}
	if loc.Size != int64(len("payload")) {
		t.Errorf("Size = %d, want %d", loc.Size, len("payload"))
	}

	data, err := store.Get(ctx, "charts", "abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Get() = %q, want %q", data, "payload")
	}

	deleted, err := store.Delete(ctx, "charts", "abc")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Expected Delete to report removal")
	}

	_, err = store.Get(ctx, "charts", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	deleted, err = store.Delete(ctx, "charts", "abc")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Expected second Delete to be a no-op")
	}
}

func TestFilesystemStoreGetMissing(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}

	_, err = store.Get(context.Background(), "charts", "never-stored")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFilesystemStoreOverwrite(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "tiles", "t1", "image/png", []byte("old")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Put(ctx, "tiles", "t1", "image/png", []byte("new")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := store.Get(ctx, "tiles", "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "new" {
		t.Errorf("Get() = %q, want the overwritten contents", data)
	}
}

func TestFilesystemStoreList(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	ctx := context.Background()

	ids, err := store.List(ctx, "empty-category")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected empty listing, got %v", ids)
	}

	for _, id := range []string{"b", "a", "c"} {
		if _, err := store.Put(ctx, "charts", id, "image/png", []byte(id)); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	ids, err = store.List(ctx, "charts")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("List() = %v, want %v", ids, want)
	}

	// No temporary files remain visible after writes
	entries, err := os.ReadDir(filepath.Join(root, "charts"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 files on disk, got %d", len(entries))
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Put(ctx, "charts", "x", "image/png", []byte("chart")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := store.Get(ctx, "charts", "x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "chart" {
		t.Errorf("Get() = %q, want %q", data, "chart")
	}

	_, err = store.Get(ctx, "charts", "y")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
