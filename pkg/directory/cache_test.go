package directory

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewware/teamcore/pkg/perm"
)

// countingLookup records how many times the backend was consulted.
type countingLookup struct {
	mu       sync.Mutex
	calls    int
	displays map[perm.Principal]Display
}

func (c *countingLookup) Display(_ context.Context, p perm.Principal) (Display, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if d, ok := c.displays[p]; ok {
		return d, nil
	}
	return Display{}, trace.NotFound("%s not found", p)
}

func (c *countingLookup) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestStoreLookup_Display(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE team_members (id INTEGER PRIMARY KEY, name TEXT, avatar TEXT);
		CREATE TABLE member_groups (id INTEGER PRIMARY KEY, name TEXT, avatar TEXT);
		CREATE TABLE org_nodes (id INTEGER PRIMARY KEY, name TEXT, avatar TEXT);

		INSERT INTO team_members (id, name, avatar) VALUES (1, 'Alice', 'a.png');
		INSERT INTO member_groups (id, name) VALUES (2, 'backend');
		INSERT INTO org_nodes (id, name, avatar) VALUES (3, 'labs', 'l.png');
	`)
	require.NoError(t, err)

	ctx := context.Background()
	lookup := NewStoreLookup(db)

	d, err := lookup.Display(ctx, perm.MemberPrincipal(1))
	require.NoError(t, err)
	assert.Equal(t, Display{Name: "Alice", Avatar: "a.png"}, d)

	// NULL avatars come back as empty strings.
	d, err = lookup.Display(ctx, perm.GroupPrincipal(2))
	require.NoError(t, err)
	assert.Equal(t, Display{Name: "backend"}, d)

	d, err = lookup.Display(ctx, perm.OrgPrincipal(3))
	require.NoError(t, err)
	assert.Equal(t, "labs", d.Name)

	_, err = lookup.Display(ctx, perm.MemberPrincipal(404))
	assert.True(t, trace.IsNotFound(err), "expected NotFound, got %v", err)

	_, err = lookup.Display(ctx, perm.Principal{})
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)
}

func TestCachedLookup_LocalTier(t *testing.T) {
	ctx := context.Background()
	alice := perm.MemberPrincipal(1)
	backend := &countingLookup{displays: map[perm.Principal]Display{
		alice: {Name: "Alice"},
	}}

	cache := NewCachedLookup(backend, nil, DefaultCacheConfig(), nil)

	for i := 0; i < 3; i++ {
		d, err := cache.Display(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "Alice", d.Name)
	}
	assert.Equal(t, 1, backend.callCount())

	// Backend errors are not cached.
	_, err := cache.Display(ctx, perm.MemberPrincipal(404))
	assert.True(t, trace.IsNotFound(err))
	_, err = cache.Display(ctx, perm.MemberPrincipal(404))
	assert.True(t, trace.IsNotFound(err))
	assert.Equal(t, 3, backend.callCount())
}

func TestCachedLookup_RedisTier(t *testing.T) {
	ctx := context.Background()
	alice := perm.MemberPrincipal(1)
	backend := &countingLookup{displays: map[perm.Principal]Display{
		alice: {Name: "Alice", Avatar: "a.png"},
	}}

	client := newTestRedis(t)
	config := CacheConfig{MaxEntries: 16, LocalTTL: time.Minute, RedisTTL: 15 * time.Minute}
	cache := NewCachedLookup(backend, client, config, nil)

	d, err := cache.Display(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", d.Name)
	assert.Equal(t, 1, backend.callCount())

	// A second cache with an empty local tier reads the Redis fill
	// without touching the backend.
	second := NewCachedLookup(backend, client, config, nil)
	d, err = second.Display(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, Display{Name: "Alice", Avatar: "a.png"}, d)
	assert.Equal(t, 1, backend.callCount())
}

func TestCachedLookup_Invalidate(t *testing.T) {
	ctx := context.Background()
	alice := perm.MemberPrincipal(1)
	backend := &countingLookup{displays: map[perm.Principal]Display{
		alice: {Name: "Alice"},
	}}

	client := newTestRedis(t)
	cache := NewCachedLookup(backend, client, DefaultCacheConfig(), nil)

	_, err := cache.Display(ctx, alice)
	require.NoError(t, err)

	backend.displays[alice] = Display{Name: "Alicia"}
	cache.Invalidate(ctx, alice)

	d, err := cache.Display(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", d.Name)
	assert.Equal(t, 2, backend.callCount())
}

func TestCachedLookup_ZeroPrincipal(t *testing.T) {
	cache := NewCachedLookup(&countingLookup{}, nil, DefaultCacheConfig(), nil)
	_, err := cache.Display(context.Background(), perm.Principal{})
	assert.True(t, trace.IsBadParameter(err), "expected BadParameter, got %v", err)
}
