package model

import (
	"testing"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/require"
)

func TestNewMovementFrameEncodesGeohash(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := NewMovementFrame(42, "r-1", "uni-1", now, 40.7128, -74.0060, 3.5, now)

	require.Len(t, f.Geohash, 12)
	require.Equal(t, geohash.EncodeWithPrecision(40.7128, -74.0060, 12), f.Geohash)

	// A nearby but different coordinate must hash differently at this
	// precision.
	other := NewMovementFrame(42, "r-1", "uni-1", now, 40.7129, -74.0060, 3.5, now)
	require.NotEqual(t, f.Geohash, other.Geohash)

	lat, lon := geohash.DecodeCenter(f.Geohash)
	require.InDelta(t, 40.7128, lat, 1e-4)
	require.InDelta(t, -74.0060, lon, 1e-4)
}

func TestSnapshotEntryBreakTransitions(t *testing.T) {
	now := time.Now()
	e := VehicleSnapshotEntry{}

	e.StartBreak(now)
	require.True(t, e.OnBreak)
	require.NotNil(t, e.BreakStart)

	started := *e.BreakStart
	e.StartBreak(now.Add(time.Minute))
	require.Equal(t, started, *e.BreakStart, "StartBreak must not restart an active break")

	e.Resume()
	require.False(t, e.OnBreak)
	require.Nil(t, e.BreakStart)
	require.Nil(t, e.StationarySince)
}

func TestStationaryFor(t *testing.T) {
	now := time.Now()
	e := VehicleSnapshotEntry{}
	require.Zero(t, e.StationaryFor(now))

	since := now.Add(-90 * time.Second)
	e.StationarySince = &since
	require.Equal(t, 90*time.Second, e.StationaryFor(now))
}
