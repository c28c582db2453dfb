package bufferpool

// Config holds the tunables for a BufferPool. Filename is the only
// required field; every other field falls back to a documented
// default when left zero-valued.
type Config struct {
	// Filename is the backing heap file path.
	Filename string
	// Create initializes a new heap file when true; otherwise an
	// existing file is opened.
	Create bool
	// PageSize is the fixed page size in bytes. Default 4096.
	PageSize int
	// HotCacheSize is the hot tier's soft capacity, in entries.
	// Default 1024.
	HotCacheSize int
	// ColdCacheSize is the cold tier's soft capacity, in entries.
	// Default 3072.
	ColdCacheSize int
	// PromotionThreshold is the heat value above which a cold hit is
	// promoted to hot. Default 3.0.
	PromotionThreshold float64
	// AdmissionProbability is the chance a freshly-inserted entry is
	// admitted directly into the hot tier. Default 0.1. A pointer so
	// an explicit 0 (never admit hot) is distinguishable from "not
	// set" — both are legitimate values for this field, unlike the
	// other float defaults here.
	AdmissionProbability *float64
	// ForceMissProbability is a debug/test hook: the chance a
	// fetch_page bypasses the cache lookup even when the page is
	// resident. A resident page that is pinned is not bypassed: the
	// fetch finds the existing entry. Default 0 (disabled).
	ForceMissProbability float64
	// PressureEvictionBatch is N in evict_pages_under_pressure.
	// Default 10.
	PressureEvictionBatch int
}

const (
	defaultPageSize              = 4096
	defaultHotCacheSize          = 1024
	defaultColdCacheSize         = 3072
	defaultPromotionThreshold    = 3.0
	defaultAdmissionProbability  = 0.1
	defaultForceMissProbability  = 0.0
	defaultPressureEvictionBatch = 10
)

// Float64 returns a pointer to v, for populating Config.AdmissionProbability
// from a literal (e.g. bufferpool.Float64(0) to disable hot admission
// entirely).
func Float64(v float64) *float64 { return &v }

// withDefaults returns a copy of cfg with every unset optional field
// replaced by its default.
func (cfg Config) withDefaults() Config {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.HotCacheSize == 0 {
		cfg.HotCacheSize = defaultHotCacheSize
	}
	if cfg.ColdCacheSize == 0 {
		cfg.ColdCacheSize = defaultColdCacheSize
	}
	if cfg.PromotionThreshold == 0 {
		cfg.PromotionThreshold = defaultPromotionThreshold
	}
	if cfg.AdmissionProbability == nil {
		cfg.AdmissionProbability = Float64(defaultAdmissionProbability)
	}
	if cfg.PressureEvictionBatch == 0 {
		cfg.PressureEvictionBatch = defaultPressureEvictionBatch
	}
	// ForceMissProbability legitimately defaults to 0; nothing to do.
	return cfg
}
