package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/config"
)

const listingHTML = `<!DOCTYPE html>
<html>
<body>
  <h1>Storage and spill</h1>
  <ul>
    <li><a href="/datasets/3.1_Storage/NI_TPO_Storage_LakeTaupo.csv">Lake Taupo</a></li>
    <li><a href="SI_PKI_Storage_LakePukaki.csv">Lake Pukaki</a></li>
    <li><a href="https://other.example.org/SI_HWE_Storage_LakeHawea.CSV">Lake Hawea</a></li>
    <li><a href="/datasets/readme.pdf">Readme</a></li>
    <li><a href="/datasets/3.1_Storage/NI_TPO_Storage_LakeTaupo.csv">Lake Taupo again</a></li>
  </ul>
</body>
</html>`

func TestDiscoverCSVLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	links, err := DiscoverCSVLinks(context.Background(), server.Client(), server.URL+"/datasets/listing.html")
	require.NoError(t, err)

	// Relative hrefs resolve against the page URL, duplicates collapse,
	// non-CSV links are skipped and extension matching is case-insensitive.
	require.Len(t, links, 3)
	assert.Equal(t, server.URL+"/datasets/3.1_Storage/NI_TPO_Storage_LakeTaupo.csv", links[0])
	assert.Equal(t, server.URL+"/datasets/SI_PKI_Storage_LakePukaki.csv", links[1])
	assert.Equal(t, "https://other.example.org/SI_HWE_Storage_LakeHawea.CSV", links[2])
}

func TestDiscoverCSVLinksBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := DiscoverCSVLinks(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHydroDescriptorFromURL(t *testing.T) {
	d := HydroDescriptorFromURL("https://emi.example/3.1_Storage/SI_WPU_Storage_LakeWakatipu.csv")

	assert.Equal(t, "lake_wakatipu", d.SeriesID)
	assert.Equal(t, config.DatasetHydro, d.Dataset)
	assert.Equal(t, config.HydroDateColumn, d.TimestampColumn)
	assert.Equal(t, config.HydroTimeColumn, d.TimeColumn)
	assert.Equal(t, config.HydroStorageColumn, d.ValueColumn)
	assert.True(t, d.IsRemote())
}
