package catalog

import (
	"testing"

	"github.com/sharc-db/sharc/internal/storage/btree"
	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

func newEmptySchemaDB(t *testing.T, pageSize int) pagesource.PageSource {
	t.Helper()
	src := pagesource.NewMemoryPageSource(pageSize, 1)
	buf := make([]byte, pageSize)
	hdr := format.New(pageSize)
	copy(buf, hdr.Serialize())
	btree.Init(buf, true, format.PageLeafTable)
	if err := src.WritePage(1, buf); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestCreateAndLookupTable(t *testing.T) {
	src := newEmptySchemaDB(t, 4096)
	cat, err := Load(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	root, err := cat.CreateTable("_concepts", "CREATE TABLE _concepts(id INTEGER PRIMARY KEY, key TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	if root == 0 {
		t.Fatal("expected nonzero root page")
	}
	e, ok := cat.Lookup("_concepts")
	if !ok {
		t.Fatal("expected to find _concepts")
	}
	if e.RootPage != root {
		t.Fatalf("RootPage = %d, want %d", e.RootPage, root)
	}
	if !IsSystemTable(e.Name) {
		t.Fatalf("%q should be recognized as a system table", e.Name)
	}
}

func TestDropTableRemovesEntry(t *testing.T) {
	src := newEmptySchemaDB(t, 4096)
	cat, err := Load(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateTable("widgets", "CREATE TABLE widgets(id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	if err := cat.DropTable("widgets"); err != nil {
		t.Fatal(err)
	}
	if _, ok := cat.Lookup("widgets"); ok {
		t.Fatal("widgets should be gone after drop")
	}
}

func TestReloadRecoversEntries(t *testing.T) {
	src := newEmptySchemaDB(t, 4096)
	cat, err := Load(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateTable("gadgets", "CREATE TABLE gadgets(id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	reloaded, err := Load(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Lookup("gadgets"); !ok {
		t.Fatal("reloaded catalog should still see gadgets")
	}
}
