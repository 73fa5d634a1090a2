// Package fingerprint computes the stable hash used to de-duplicate
// found items. It hashes the listing's identity: the listing's
// externally stable id when present, else a deterministic composite of
// the attributes that together identify the same physical listing
// across observations. Floats are bucketed before hashing so two
// observations of the same listing a few microdollars apart still
// collide. Uses crypto/sha256 rather than a third-party hash library
// since none of the retrieved examples carry one suited to a
// collision-sensitive dedup key (the teacher's only hash helper,
// fnvHash in scheduler/scheduler.go, is a sharding hash, not a dedup key).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

// bucketDecimals is the number of decimal places a float is rounded to
// before it enters the hash, so small float jitter between two fetches
// of the same listing does not change its fingerprint.
const bucketDecimals = 4

// Compute returns the stable fingerprint for a listing found under a
// given task. When the listing carries its own externally stable id,
// that id alone identifies it — price and wear are observational, not
// identifying, and must not perturb the fingerprint. Only when no
// stable id is available does the fingerprint fall back to a
// composite of the attributes that together stand in for one.
func Compute(taskID string, l store.Listing) string {
	h := sha256.New()
	if l.ListingID != "" {
		fmt.Fprintf(h, "id|%s|%s", taskID, l.ListingID)
	} else {
		fmt.Fprintf(h, "composite|%s|%s|%s|%s|%d|%s",
			taskID,
			l.Name,
			bucketFloat(l.Price),
			bucketFloat(l.Wear),
			l.Pattern,
			l.SellerOpaqueID,
		)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func bucketFloat(f float64) string {
	scale := math.Pow10(bucketDecimals)
	bucketed := math.Round(f*scale) / scale
	return fmt.Sprintf("%.*f", bucketDecimals, bucketed)
}
