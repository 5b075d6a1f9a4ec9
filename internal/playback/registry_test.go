package playback

import (
	"sync"
	"testing"
)

func TestRegistry_GetOrCreateIsShared(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var wg sync.WaitGroup
	got := make([]*Session, 32)
	for i := range got {
		wg.Go(func() { got[i] = r.GetOrCreate("g") })
	}
	wg.Wait()
	for i, s := range got {
		if s != got[0] {
			t.Fatalf("call %d returned a different session", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if s := got[0]; s.GuildID() != "g" || s.State() != StateDisconnected {
		t.Errorf("new session = {%s, %s}, want {g, disconnected}", s.GuildID(), s.State())
	}
}

func TestRegistry_RemoveIf(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	old := r.GetOrCreate("g")
	r.Remove("g")
	fresh := r.GetOrCreate("g")

	if r.RemoveIf("g", old) {
		t.Fatal("RemoveIf removed a newer session")
	}
	if s, _ := r.Get("g"); s != fresh {
		t.Fatal("fresh session replaced")
	}
	if !r.RemoveIf("g", fresh) {
		t.Fatal("RemoveIf did not remove the matching session")
	}
	if _, ok := r.Get("g"); ok {
		t.Error("session still registered")
	}
}

func TestRegistry_StreamIndex(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.IndexStream("s1", "g1")
	r.IndexStream("s2", "g2")

	if g, ok := r.ResolveStream("s1"); !ok || g != "g1" {
		t.Errorf("ResolveStream(s1) = %q, %v", g, ok)
	}
	r.UnindexStream("s1")
	if _, ok := r.ResolveStream("s1"); ok {
		t.Error("s1 still indexed")
	}
	if _, ok := r.ResolveStream("s2"); !ok {
		t.Error("s2 lost")
	}
}

func TestRegistry_Sessions(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, g := range []string{"a", "b", "c"} {
		r.GetOrCreate(g)
	}
	if n := len(r.Sessions()); n != 3 {
		t.Errorf("Sessions = %d, want 3", n)
	}
}
