package storage

import "testing"

func TestMemoryDBGetPutDelete(t *testing.T) {
	db := NewMemory()

	if _, err := db.Get([]byte("a")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := db.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want %q", v, "1")
	}

	if ok, _ := db.Has([]byte("a")); !ok {
		t.Fatalf("expected Has to be true")
	}

	if err := db.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatalf("expected Has to be false after delete")
	}
}

func TestMemoryDBForEachOrder(t *testing.T) {
	db := NewMemory()
	for _, k := range []string{"p:c", "p:a", "p:b", "q:z"} {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	var got []string
	err := db.ForEach([]byte("p:"), func(key, _ []byte) error {
		got = append(got, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("foreach: %v", err)
	}
	want := []string{"p:a", "p:b", "p:c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMemoryDBBatchAtomicity(t *testing.T) {
	db := NewMemory()
	b := db.NewBatch()
	if err := b.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatalf("batch put: %v", err)
	}
	if err := b.Put([]byte("y"), []byte("2")); err != nil {
		t.Fatalf("batch put: %v", err)
	}

	if ok, _ := db.Has([]byte("x")); ok {
		t.Fatalf("batch write should not be visible before commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := db.Has([]byte("x")); !ok {
		t.Fatalf("batch write should be visible after commit")
	}
}

func TestPrefixDBNamespaces(t *testing.T) {
	mem := NewMemory()
	a := NewPrefixDB(mem, []byte("a/"))
	b := NewPrefixDB(mem, []byte("b/"))

	if err := a.Put([]byte("k"), []byte("from-a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b.Put([]byte("k"), []byte("from-b")); err != nil {
		t.Fatalf("put: %v", err)
	}

	va, err := a.Get([]byte("k"))
	if err != nil || string(va) != "from-a" {
		t.Fatalf("a.Get = %q, %v", va, err)
	}
	vb, err := b.Get([]byte("k"))
	if err != nil || string(vb) != "from-b" {
		t.Fatalf("b.Get = %q, %v", vb, err)
	}

	raw, err := mem.Get([]byte("a/k"))
	if err != nil || string(raw) != "from-a" {
		t.Fatalf("raw key a/k = %q, %v", raw, err)
	}
}
