package querycache

import "sync/atomic"

// Stats is a snapshot of interceptor counters.
type Stats struct {
	Hits                uint64 `json:"hits"`
	RequestHits         uint64 `json:"request_hits"`
	Misses              uint64 `json:"misses"`
	Bypasses            uint64 `json:"bypasses"`
	StoreErrors         uint64 `json:"store_errors"`
	SerializationErrors uint64 `json:"serialization_errors"`
	Purges              uint64 `json:"purges"`
}

type counters struct {
	hits                atomic.Uint64
	requestHits         atomic.Uint64
	misses              atomic.Uint64
	bypasses            atomic.Uint64
	storeErrors         atomic.Uint64
	serializationErrors atomic.Uint64
	purges              atomic.Uint64
}

// Stats returns the counters accumulated since New. Hits include
// RequestHits.
func (ic *Interceptor) Stats() Stats {
	return Stats{
		Hits:                ic.stats.hits.Load(),
		RequestHits:         ic.stats.requestHits.Load(),
		Misses:              ic.stats.misses.Load(),
		Bypasses:            ic.stats.bypasses.Load(),
		StoreErrors:         ic.stats.storeErrors.Load(),
		SerializationErrors: ic.stats.serializationErrors.Load(),
		Purges:              ic.stats.purges.Load(),
	}
}
