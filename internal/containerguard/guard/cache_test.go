package guard

import (
	"testing"
	"time"

	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
)

func TestContainerCache_RefreshReplacesContentsAndBoundsSize(t *testing.T) {
	c := newContainerCache(time.Minute, 2)
	infos := []dockerapi.ContainerInfo{
		{ID: "aaa111"}, {ID: "bbb222"}, {ID: "ccc333"},
	}
	c.Refresh(infos, time.Now())

	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2 (bounded by maxSize)", c.Size())
	}
}

func TestContainerCache_Stale_EmptyCacheIsStale(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	if !c.Stale(time.Now()) {
		t.Error("expected an empty cache to be reported stale")
	}
}

func TestContainerCache_Stale_BeforeAndAfterTTL(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	now := time.Now()
	c.Refresh([]dockerapi.ContainerInfo{{ID: "aaa"}}, now)

	if c.Stale(now.Add(30 * time.Second)) {
		t.Error("expected cache to be fresh before TTL elapses")
	}
	if !c.Stale(now.Add(2 * time.Minute)) {
		t.Error("expected cache to be stale once TTL has elapsed")
	}
}

func TestContainerCache_ResolveID_ExactMatch(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	c.Refresh([]dockerapi.ContainerInfo{{ID: "abcdef123456", Name: "web"}}, time.Now())

	info, ok := c.ResolveID("abcdef123456")
	if !ok || info.Name != "web" {
		t.Errorf("ResolveID exact = %+v, %v", info, ok)
	}
}

func TestContainerCache_ResolveID_UniquePrefixMatch(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	c.Refresh([]dockerapi.ContainerInfo{{ID: "abcdef123456", Name: "web"}}, time.Now())

	info, ok := c.ResolveID("abcdef")
	if !ok || info.Name != "web" {
		t.Errorf("ResolveID prefix = %+v, %v", info, ok)
	}
}

func TestContainerCache_ResolveID_AmbiguousPrefixFails(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	c.Refresh([]dockerapi.ContainerInfo{
		{ID: "abc111"}, {ID: "abc222"},
	}, time.Now())

	if _, ok := c.ResolveID("abc"); ok {
		t.Error("expected an ambiguous prefix match to fail")
	}
}

func TestContainerCache_ResolveID_NoMatch(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	c.Refresh([]dockerapi.ContainerInfo{{ID: "abc111"}}, time.Now())

	if _, ok := c.ResolveID("zzz"); ok {
		t.Error("expected no match for an unrelated id")
	}
}

func TestContainerCache_All_ReturnsSnapshot(t *testing.T) {
	c := newContainerCache(time.Minute, 10)
	c.Refresh([]dockerapi.ContainerInfo{{ID: "a"}, {ID: "b"}}, time.Now())

	all := c.All()
	if len(all) != 2 {
		t.Errorf("All() returned %d entries, want 2", len(all))
	}
}
