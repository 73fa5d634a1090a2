package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrannozavr/steamParser/internal/fingerprint"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

func TestCompute_StableAcrossIdenticalInputs(t *testing.T) {
	l := store.Listing{ListingID: "L1", Price: 12.3456, Wear: 0.1234}
	a := fingerprint.Compute("task-1", l)
	b := fingerprint.Compute("task-1", l)
	assert.Equal(t, a, b)
}

func TestCompute_WithStableIDIgnoresPriceAndWearJitter(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{ListingID: "L1", Price: 10, Wear: 0.1})
	b := fingerprint.Compute("task-1", store.Listing{ListingID: "L1", Price: 12.5, Wear: 0.9})
	assert.Equal(t, a, b, "a stable listing id alone identifies the listing; price/wear are observational")
}

func TestCompute_DiffersAcrossTasks(t *testing.T) {
	l := store.Listing{ListingID: "L1", Price: 10}
	a := fingerprint.Compute("task-1", l)
	b := fingerprint.Compute("task-2", l)
	assert.NotEqual(t, a, b)
}

func TestCompute_DiffersAcrossListingIdentity(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{ListingID: "L1", Price: 10})
	b := fingerprint.Compute("task-1", store.Listing{ListingID: "L2", Price: 10})
	assert.NotEqual(t, a, b)
}

func TestCompute_CompositeBucketsFloatsToFourDecimals(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 12.00001})
	b := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 12.00002})
	assert.Equal(t, a, b, "sub-4-decimal float jitter must not change the composite fingerprint")
}

func TestCompute_CompositeDiffersAcrossFifthDecimalBoundary(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 12.00001})
	b := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 12.00051})
	assert.NotEqual(t, a, b)
}

func TestCompute_CompositeDiffersAcrossSellerWhenNoStableID(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 10, SellerOpaqueID: "s1"})
	b := fingerprint.Compute("task-1", store.Listing{Name: "AK-47 | Redline", Price: 10, SellerOpaqueID: "s2"})
	assert.NotEqual(t, a, b)
}

func TestCompute_CompositeDiffersAcrossPattern(t *testing.T) {
	a := fingerprint.Compute("task-1", store.Listing{Name: "Case Hardened", Price: 10, Pattern: 661})
	b := fingerprint.Compute("task-1", store.Listing{Name: "Case Hardened", Price: 10, Pattern: 662})
	assert.NotEqual(t, a, b)
}
