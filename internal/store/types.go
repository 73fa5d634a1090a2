package store

import "time"

// MonitoringTask is a user-owned watch against the Steam Market: a
// query plus a FilterDoc plus the scheduling state the control loop
// advances every tick.
type MonitoringTask struct {
	TaskID        string    `json:"task_id" db:"task_id"`
	OwnerID       string    `json:"owner_id" db:"owner_id"`
	AppID         int       `json:"app_id" db:"app_id"`
	MarketHashName string   `json:"market_hash_name" db:"market_hash_name"`
	Filters       FilterDoc `json:"filters" db:"filters"`
	CheckInterval time.Duration `json:"check_interval" db:"check_interval"`
	NextCheck     time.Time `json:"next_check" db:"next_check"`
	LastCheck     *time.Time `json:"last_check,omitempty" db:"last_check"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	ErrorCount    int       `json:"error_count" db:"error_count"`
	TotalChecks   int64     `json:"total_checks" db:"total_checks"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FilterDoc is the declarative predicate document evaluated by
// internal/filters against every listing a check turns up.
type FilterDoc struct {
	MaxPrice     *float64     `json:"max_price,omitempty"`
	MinPrice     *float64     `json:"min_price,omitempty"`
	WearMin      *float64     `json:"wear_min,omitempty"`
	WearMax      *float64     `json:"wear_max,omitempty"`
	NameContains string       `json:"name_contains,omitempty"`
	StickersAll  []string     `json:"stickers_all,omitempty"`
	PatternList  *PatternRule `json:"pattern_list,omitempty"`
}

// PatternRule restricts matches to specific paint-seed/item-type
// combinations (e.g. a blue-gem pattern hunt).
type PatternRule struct {
	ItemType string `json:"item_type"`
	Seeds    []int  `json:"seeds"`
}

// Listing is a single Steam Market entry as returned by a Fetcher.
type Listing struct {
	ListingID      string   `json:"listing_id,omitempty"`
	Price          float64  `json:"price"`
	Wear           float64  `json:"wear,omitempty"`
	Pattern        int      `json:"pattern,omitempty"`
	Name           string   `json:"name"`
	Stickers       []string `json:"stickers,omitempty"`
	SellerOpaqueID string   `json:"seller_opaque_id,omitempty"`
}

// FoundItem is a notified match, de-duplicated by (task_id, fingerprint).
type FoundItem struct {
	ID          int64     `json:"id" db:"id"`
	TaskID      string    `json:"task_id" db:"task_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	Listing     Listing   `json:"listing" db:"listing"`
	FoundAt     time.Time `json:"found_at" db:"found_at"`
}

// Proxy is a leasable egress endpoint. Lease and block state live here,
// in Postgres, so they survive a process restart — unlike the teacher's
// volatile Redis-held locks, this state must outlive any single process.
type Proxy struct {
	ID              string     `json:"id" db:"id"`
	Endpoint        string     `json:"endpoint" db:"endpoint"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LeaseOwner      string     `json:"lease_owner,omitempty" db:"lease_owner"`
	LeaseExpiresAt  *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty" db:"blocked_until"`
	SuccessCount    int64      `json:"success_count" db:"success_count"`
	FailureCount    int64      `json:"failure_count" db:"failure_count"`
	RateLimitCount  int64      `json:"rate_limit_count" db:"rate_limit_count"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// ProxyStats summarizes pool health for the admin status snapshot.
type ProxyStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Leasable     int `json:"leasable"`
	Blocked      int `json:"blocked"`
	CurrentlyLeased int `json:"currently_leased"`
}
