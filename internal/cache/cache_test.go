package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shuttle-tracker/internal/model"
)

func TestKeyNamespacing(t *testing.T) {
	c := New("dev_", "127.0.0.1:11211")
	require.Equal(t, "dev_uni-1_buses", c.TenantVehiclesKey("uni-1"))
	require.Equal(t, "dev_uni-1_online", c.OnlineRoutesKey("uni-1"))

	bare := New("", "127.0.0.1:11211")
	require.Equal(t, "uni-1_buses", bare.TenantVehiclesKey("uni-1"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	since := time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC)
	entries := []model.VehicleSnapshotEntry{
		{
			VehiclePosition: model.VehiclePosition{
				ID: 7, Name: "Bus 7", RouteTag: "4001",
				Lat: 40.7282, Lon: -74.0776, Speed: 0,
				LastUpdated: since,
			},
			OnBreak:         true,
			StationarySince: &since,
			BreakStart:      &since,
		},
		{
			VehiclePosition: model.VehiclePosition{ID: 8, Name: "Bus 8", RouteTag: "4002"},
		},
	}

	b, err := EncodeSnapshot(entries)
	require.NoError(t, err)
	got, err := DecodeSnapshot(b)
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, entries[0].Name, got[0].Name)
	require.True(t, got[0].OnBreak)
	require.NotNil(t, got[0].StationarySince)
	require.True(t, got[0].StationarySince.Equal(since))
	require.False(t, got[1].OnBreak)
	require.Nil(t, got[1].StationarySince)
}

func TestEncodeSnapshotNilIsEmptyList(t *testing.T) {
	b, err := EncodeSnapshot(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(b))
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("not json"))
	require.Error(t, err)
}
