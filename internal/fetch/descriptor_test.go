package fetch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/config"
)

func TestFromSpec(t *testing.T) {
	paths := &config.Paths{ExecutableDir: "/opt/emicli"}

	tests := []struct {
		name       string
		spec       config.SourceSpec
		wantOrigin string
		wantRemote bool
	}{
		{
			name: "http url passes through",
			spec: config.SourceSpec{
				SeriesID:        "lake_taupo",
				Dataset:         config.DatasetHydro,
				Location:        "https://www.emi.ea.govt.nz/storage/NI_TPO_Storage_LakeTaupo.csv",
				TimestampColumn: "Date",
				ValueColumn:     "Active storage (Mm³)",
			},
			wantOrigin: "https://www.emi.ea.govt.nz/storage/NI_TPO_Storage_LakeTaupo.csv",
			wantRemote: true,
		},
		{
			name: "relative path resolves against executable dir",
			spec: config.SourceSpec{
				SeriesID:        "BEN2201",
				Dataset:         config.DatasetFTR,
				Location:        "data/sources/ftr/BEN2201.csv",
				SkipRows:        9,
				TimestampColumn: "Trading date",
				ValueColumn:     "$/MWh",
			},
			wantOrigin: filepath.Join("/opt/emicli", "data", "sources", "ftr", "BEN2201.csv"),
			wantRemote: false,
		},
		{
			name: "absolute path passes through",
			spec: config.SourceSpec{
				SeriesID:        "BEN2201",
				Dataset:         config.DatasetFTR,
				Location:        "/data/staged/BEN2201.csv",
				TimestampColumn: "Trading date",
				ValueColumn:     "$/MWh",
			},
			wantOrigin: "/data/staged/BEN2201.csv",
			wantRemote: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromSpec(tt.spec, paths)

			assert.Equal(t, tt.spec.SeriesID, d.SeriesID)
			assert.Equal(t, tt.spec.Dataset, d.Dataset)
			assert.Equal(t, tt.wantOrigin, d.Origin)
			assert.Equal(t, tt.wantRemote, d.IsRemote())
			assert.Equal(t, tt.spec.SkipRows, d.SkipRows)
		})
	}
}

func TestFromBoard(t *testing.T) {
	paths := &config.Paths{
		ExecutableDir: "/opt/emicli",
		SnapshotsDir:  "/opt/emicli/data/snapshots",
	}

	t.Run("default snapshot path", func(t *testing.T) {
		d := FromBoard(config.FuturesBoard{Hub: "BEN", Duration: "QTR"}, paths)

		assert.Equal(t, "BEN_QTR", d.SeriesID)
		assert.Equal(t, config.DatasetFutures, d.Dataset)
		assert.Equal(t, filepath.Join("/opt/emicli", "data", "snapshots", "futures_BEN_QTR.json"), d.Origin)
		assert.False(t, d.IsRemote())
	})

	t.Run("explicit snapshot override", func(t *testing.T) {
		d := FromBoard(config.FuturesBoard{Hub: "OTA", Duration: "MON", Snapshot: "/srv/snap.json"}, paths)
		assert.Equal(t, "/srv/snap.json", d.Origin)
	})
}

func TestFromCatalogOrder(t *testing.T) {
	catalog := &config.Catalog{
		Hydro: []config.SourceSpec{
			{SeriesID: "lake_taupo", Dataset: config.DatasetHydro, Location: "a.csv", TimestampColumn: "Date", ValueColumn: "v"},
		},
		FTR: []config.SourceSpec{
			{SeriesID: "BEN2201", Dataset: config.DatasetFTR, Location: "b.csv", TimestampColumn: "Trading date", ValueColumn: "$/MWh"},
		},
		Futures: []config.FuturesBoard{
			{Hub: "BEN", Duration: "QTR"},
		},
	}

	descriptors := FromCatalog(catalog, &config.Paths{ExecutableDir: "/opt/emicli"})

	require.Len(t, descriptors, 3)
	assert.Equal(t, "lake_taupo", descriptors[0].SeriesID)
	assert.Equal(t, "BEN2201", descriptors[1].SeriesID)
	assert.Equal(t, "BEN_QTR", descriptors[2].SeriesID)
}

func TestWithDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("remote origin gains query parameters", func(t *testing.T) {
		d := Descriptor{Origin: "https://www.emi.ea.govt.nz/r/node.csv?Node=BEN2201"}
		got := d.WithDateRange(from, to)

		assert.Contains(t, got.Origin, "DateFrom=20240101")
		assert.Contains(t, got.Origin, "DateTo=20240331")
		assert.Contains(t, got.Origin, "Node=BEN2201")
		// The receiver is unchanged.
		assert.NotContains(t, d.Origin, "DateFrom")
	})

	t.Run("local origin unchanged", func(t *testing.T) {
		d := Descriptor{Origin: "/data/sources/BEN2201.csv"}
		assert.Equal(t, d, d.WithDateRange(from, to))
	})

	t.Run("zero bounds unchanged", func(t *testing.T) {
		d := Descriptor{Origin: "https://example.org/x.csv"}
		assert.Equal(t, d, d.WithDateRange(time.Time{}, time.Time{}))
	})
}

func TestCacheKey(t *testing.T) {
	a := Descriptor{SeriesID: "lake_taupo", Dataset: "hydro_storage", Origin: "a.csv", TimestampColumn: "Date", ValueColumn: "v"}
	b := Descriptor{SeriesID: "BEN2201", Dataset: "ftr_prices", Origin: "b.csv", SkipRows: 9, TimestampColumn: "Trading date", ValueColumn: "$/MWh"}

	key := CacheKey([]Descriptor{a, b})
	require.Len(t, key, 64) // hex-encoded SHA-256

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, key, CacheKey([]Descriptor{a, b}))
	})

	t.Run("order sensitive", func(t *testing.T) {
		assert.NotEqual(t, key, CacheKey([]Descriptor{b, a}))
	})

	t.Run("parse options participate", func(t *testing.T) {
		c := b
		c.SkipRows = 0
		assert.NotEqual(t, key, CacheKey([]Descriptor{a, c}))
	})
}

func TestSeriesIDFromStorageLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://emi.example/3.1_Storage/NI_TPO_Storage_LakeTaupo.csv", "lake_taupo"},
		{"https://emi.example/3.1_Storage/SI_TAU_Storage_LakeTeAnau.csv", "lake_te_anau"},
		{"https://emi.example/3.1_Storage/SI_PKI_Storage_LakePukaki.csv", "lake_pukaki"},
		{"plain.csv", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, seriesIDFromStorageLink(tt.link))
		})
	}
}
