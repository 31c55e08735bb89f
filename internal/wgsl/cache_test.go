package wgsl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rhi"
)

func TestModuleCache_SharesLowering(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	if err := Check(vertexSource, "vs_main", rhi.ShaderStageVertex); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, err := Bindings(vertexSource); err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if _, err := EntryPoints(fragmentSource); err != nil {
		t.Fatalf("EntryPoints: %v", err)
	}
	if got := Stats(); got != (CacheStats{Len: 2, Hits: 1, Misses: 2}) {
		t.Errorf("Stats() = %+v, want 2 entries, 1 hit, 2 misses", got)
	}
}

func TestModuleCache_CachesErrors(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	for range 2 {
		if err := Check("fn broken( {", "main", rhi.ShaderStageVertex); !errors.Is(err, rhi.ErrCreation) {
			t.Fatalf("err = %v, want ErrCreation", err)
		}
	}
	if got := Stats(); got.Misses != 1 || got.Hits != 1 {
		t.Errorf("Stats() = %+v, want the failure lowered once", got)
	}
}

func TestModuleCache_Eviction(t *testing.T) {
	c := newModuleCache(8)
	calls := 0
	lowerFake := func(string) (*ir.Module, error) {
		calls++
		return &ir.Module{}, nil
	}
	for i := range 8 {
		_, _ = c.getOrLower(fmt.Sprint(i), lowerFake)
	}
	// Touch 0 so it survives the eviction triggered by the ninth entry.
	_, _ = c.getOrLower("0", lowerFake)
	_, _ = c.getOrLower("8", lowerFake)

	if len(c.entries) != 6 {
		t.Fatalf("len = %d, want 6", len(c.entries))
	}
	for _, src := range []string{"0", "8"} {
		if _, ok := c.entries[src]; !ok {
			t.Errorf("recent entry %q evicted", src)
		}
	}
	for _, src := range []string{"1", "2", "3"} {
		if _, ok := c.entries[src]; ok {
			t.Errorf("stale entry %q kept", src)
		}
	}
	if calls != 9 {
		t.Errorf("lowered %d times, want 9", calls)
	}
}
