package shard

import (
	"fmt"
	"testing"

	"github.com/adalundhe/litindex/core/document"
)

func indexDoc(t *testing.T, d *Directory, shard int, id string) {
	t.Helper()
	h, err := d.Handle(shard, SubFulltext)
	if err != nil {
		t.Fatalf("handle shard %d: %v", shard, err)
	}
	err = h.Index(id, map[string]interface{}{
		document.FieldIdentifier: id,
		document.FieldFulltext:   "some text in " + id,
	})
	if err != nil {
		t.Fatalf("index %s: %v", id, err)
	}
}

func TestEnsureWritableShardCreatesFirst(t *testing.T) {
	d := NewDirectory(t.TempDir(), nil)
	defer d.Close()

	shard, fresh, err := d.EnsureWritableShard(2)
	if err != nil {
		t.Fatal(err)
	}
	if shard != 0 {
		t.Errorf("shard = %d, want 0", shard)
	}
	if !fresh {
		t.Error("first shard should be fresh")
	}

	shards, err := d.Shards()
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 1 || shards[0] != 0 {
		t.Errorf("shards = %v, want [0]", shards)
	}
}

func TestEnsureWritableShardRollsOver(t *testing.T) {
	d := NewDirectory(t.TempDir(), nil)
	defer d.Close()

	// Three documents at maxDocs=2: the first two land in shard 0, the
	// third forces shard 1 into existence.
	for i := 0; i < 3; i++ {
		shard, _, err := d.EnsureWritableShard(2)
		if err != nil {
			t.Fatal(err)
		}
		indexDoc(t, d, shard, fmt.Sprintf("doc-%d", i))
	}

	shards, err := d.Shards()
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 2 {
		t.Fatalf("shards = %v, want two shards", shards)
	}

	h0, err := d.Handle(0, SubFulltext)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := h0.DocCount(); n != 2 {
		t.Errorf("shard 0 count = %d, want 2", n)
	}

	h1, err := d.Handle(1, SubFulltext)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := h1.DocCount(); n != 1 {
		t.Errorf("shard 1 count = %d, want 1", n)
	}
}

func TestEnsureWritableShardFreshUntilFirstCommit(t *testing.T) {
	d := NewDirectory(t.TempDir(), nil)
	defer d.Close()

	if _, fresh, err := d.EnsureWritableShard(100); err != nil || !fresh {
		t.Fatalf("fresh = %v, err = %v, want fresh empty shard", fresh, err)
	}
	// A retry before any document lands still reports fresh.
	if _, fresh, err := d.EnsureWritableShard(100); err != nil || !fresh {
		t.Fatalf("fresh = %v, err = %v on retry", fresh, err)
	}

	indexDoc(t, d, 0, "doc-0")
	if _, fresh, err := d.EnsureWritableShard(100); err != nil || fresh {
		t.Fatalf("fresh = %v, err = %v after first commit", fresh, err)
	}
}

func TestHandleIsCached(t *testing.T) {
	d := NewDirectory(t.TempDir(), nil)
	defer d.Close()

	if _, _, err := d.EnsureWritableShard(10); err != nil {
		t.Fatal(err)
	}

	a, err := d.Handle(0, SubSentence)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Handle(0, SubSentence)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the same cached handle")
	}
}

func TestInvalidateAdvancesGenerationAndReopens(t *testing.T) {
	d := NewDirectory(t.TempDir(), nil)
	defer d.Close()

	if _, _, err := d.EnsureWritableShard(10); err != nil {
		t.Fatal(err)
	}
	gen := d.Generation()

	if err := d.Invalidate(); err != nil {
		t.Fatal(err)
	}
	if d.Generation() <= gen {
		t.Errorf("generation = %d, want > %d", d.Generation(), gen)
	}

	// Access after invalidation reopens from disk.
	readers, err := d.Subreaders(document.GranularityDocument, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(readers) != 1 {
		t.Errorf("readers = %d, want 1", len(readers))
	}
}

func TestSubIndexName(t *testing.T) {
	cases := []struct {
		g    document.Granularity
		cs   bool
		want string
	}{
		{document.GranularityDocument, false, SubFulltext},
		{document.GranularityDocument, true, SubFulltextCS},
		{document.GranularitySentence, false, SubSentence},
		{document.GranularitySentence, true, SubSentenceCS},
	}
	for _, c := range cases {
		if got := SubIndexName(c.g, c.cs); got != c.want {
			t.Errorf("SubIndexName(%s, %t) = %s, want %s", c.g, c.cs, got, c.want)
		}
	}
}
