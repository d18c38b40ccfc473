// Package cache wraps memcached access for the per-tenant snapshot keys.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"shuttle-tracker/internal/model"
)

// SnapshotTTL bounds how long tenant snapshot keys survive without a
// reconciler tick refreshing them.
const SnapshotTTL = time.Hour

// Client is a thin typed layer over a memcached connection. Keys are
// namespaced with an environment prefix so dev and prod deployments can
// share a cluster.
type Client struct {
	mc     *memcache.Client
	prefix string
}

// New connects to the given memcached servers. The prefix may be empty.
func New(prefix string, servers ...string) *Client {
	mc := memcache.New(servers...)
	mc.Timeout = 2 * time.Second
	return &Client{mc: mc, prefix: prefix}
}

func (c *Client) key(parts string) string { return c.prefix + parts }

// TenantVehiclesKey returns the snapshot key for a tenant.
func (c *Client) TenantVehiclesKey(tenantID string) string {
	return c.key(fmt.Sprintf("%s_buses", tenantID))
}

// OnlineRoutesKey returns the online-routes key for a tenant.
func (c *Client) OnlineRoutesKey(tenantID string) string {
	return c.key(fmt.Sprintf("%s_online", tenantID))
}

// TenantVehicles loads the cached vehicle snapshot for a tenant. A cache
// miss returns an empty list and no error; callers treat read errors as
// an empty list too (fail-open), but still get them for logging.
func (c *Client) TenantVehicles(tenantID string) ([]model.VehicleSnapshotEntry, error) {
	item, err := c.mc.Get(c.TenantVehiclesKey(tenantID))
	if err == memcache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", c.TenantVehiclesKey(tenantID), err)
	}
	entries, err := DecodeSnapshot(item.Value)
	if err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", c.TenantVehiclesKey(tenantID), err)
	}
	return entries, nil
}

// StoreTenantVehicles replaces the tenant's vehicle snapshot. Last write
// wins; there is no cross-key transactional guarantee.
func (c *Client) StoreTenantVehicles(tenantID string, entries []model.VehicleSnapshotEntry) error {
	b, err := EncodeSnapshot(entries)
	if err != nil {
		return err
	}
	return c.setBytes(c.TenantVehiclesKey(tenantID), b, SnapshotTTL)
}

// StoreOnlineRoutes persists the set of route tags currently seen live.
func (c *Client) StoreOnlineRoutes(tenantID string, routeTags []string) error {
	b, err := json.Marshal(routeTags)
	if err != nil {
		return err
	}
	return c.setBytes(c.OnlineRoutesKey(tenantID), b, SnapshotTTL)
}

// OnlineRoutes loads the cached online route tags for a tenant.
func (c *Client) OnlineRoutes(tenantID string) ([]string, error) {
	item, err := c.mc.Get(c.OnlineRoutesKey(tenantID))
	if err == memcache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", c.OnlineRoutesKey(tenantID), err)
	}
	var tags []string
	if err := json.Unmarshal(item.Value, &tags); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", c.OnlineRoutesKey(tenantID), err)
	}
	return tags, nil
}

func (c *Client) setBytes(key string, value []byte, ttl time.Duration) error {
	err := c.mc.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// EncodeSnapshot serialises snapshot entries to their cached form.
func EncodeSnapshot(entries []model.VehicleSnapshotEntry) ([]byte, error) {
	if entries == nil {
		entries = []model.VehicleSnapshotEntry{}
	}
	return json.Marshal(entries)
}

// DecodeSnapshot parses the cached snapshot form.
func DecodeSnapshot(b []byte) ([]model.VehicleSnapshotEntry, error) {
	var entries []model.VehicleSnapshotEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
