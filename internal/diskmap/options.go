package diskmap

import "github.com/hupe1980/refdb/internal/resource"

// DefaultLoadFactor gives 1024 buckets.
const DefaultLoadFactor = 10

type options struct {
	loadFactor    uint8
	cacheCapacity int
	rc            *resource.Controller
}

// Option configures a HashMap.
type Option func(*options)

// WithLoadFactor sets log2 of the bucket count. It only applies when the map
// is created; an existing map keeps the load factor it was created with.
func WithLoadFactor(lf uint8) Option {
	return func(o *options) {
		o.loadFactor = lf
	}
}

// WithCache overlays the directory with caches of the given capacity.
// A capacity of 0 disables caching.
func WithCache(capacity int, rc *resource.Controller) Option {
	return func(o *options) {
		o.cacheCapacity = capacity
		o.rc = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{loadFactor: DefaultLoadFactor}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
