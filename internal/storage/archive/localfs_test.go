// internal/storage/archive/localfs_test.go
package archive

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/newthinker/macross/internal/core"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte(`{"symbol":"SPY"}`)

	if err := fs.Write(ctx, "reports/SPY/run.json", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "reports/SPY/run.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}

	// Overwrite replaces the content
	if err := fs.Write(ctx, "reports/SPY/run.json", []byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ = fs.Read(ctx, "reports/SPY/run.json")
	if string(got) != "{}" {
		t.Errorf("after overwrite got %q", got)
	}
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())

	_, err := fs.Read(context.Background(), "reports/none.json")
	if !errors.Is(err, core.ErrObjectNotFound) {
		t.Errorf("Read() error = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalFS_RejectsParentPaths(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	if err := fs.Write(ctx, "../escape.json", []byte("x")); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("Write() error = %v, want ErrInvalidParameter", err)
	}
	if _, err := fs.Read(ctx, "reports/../../etc/passwd"); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("Read() error = %v, want ErrInvalidParameter", err)
	}
}

func TestLocalFS_Exists(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	exists, _ := fs.Exists(ctx, "nonexistent.json")
	if exists {
		t.Error("expected false for nonexistent file")
	}

	fs.Write(ctx, "exists.json", []byte("data"))
	exists, _ = fs.Exists(ctx, "exists.json")
	if !exists {
		t.Error("expected true for existing file")
	}
}

func TestLocalFS_List(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "reports/SPY/b.json", []byte("b"))
	fs.Write(ctx, "reports/SPY/a.json", []byte("a"))
	fs.Write(ctx, "reports/QQQ/c.json", []byte("c"))

	paths, err := fs.List(ctx, "reports/SPY")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"reports/SPY/a.json", "reports/SPY/b.json"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("List() = %v, want %v", paths, want)
	}

	paths, err = fs.List(ctx, "reports/IWM")
	if err != nil || len(paths) != 0 {
		t.Errorf("List() of missing prefix = %v, %v", paths, err)
	}
}

func TestLocalFS_Delete(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "delete.json", []byte("data"))
	if err := fs.Delete(ctx, "delete.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, _ := fs.Exists(ctx, "delete.json")
	if exists {
		t.Error("file should be deleted")
	}

	if err := fs.Delete(ctx, "delete.json"); !errors.Is(err, core.ErrObjectNotFound) {
		t.Errorf("second Delete() error = %v, want ErrObjectNotFound", err)
	}
}
