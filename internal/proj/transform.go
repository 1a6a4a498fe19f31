package proj

import "fmt"

// TransformFn converts a single coordinate between two projections.
type TransformFn func(x, y float64) (float64, float64)

type transformKey struct {
	src, dst string
}

var (
	transforms = make(map[transformKey]TransformFn)
)

// registerTransform installs a pair of coordinate transforms between
// two projection codes.
func registerTransform(src, dst string, forward, inverse TransformFn) {
	regMu.Lock()
	defer regMu.Unlock()
	transforms[transformKey{src, dst}] = forward
	transforms[transformKey{dst, src}] = inverse
}

// identityTransform passes coordinates through unchanged.
func identityTransform(x, y float64) (float64, float64) { return x, y }

// compose chains two transforms.
func compose(a, b TransformFn) TransformFn {
	return func(x, y float64) (float64, float64) {
		return b(a(x, y))
	}
}

// TransformFunc returns a function converting coordinates from src to
// dst. Identical projections get the identity; otherwise a registered
// direct transform is used, falling back to routing through
// EPSG:4326. An error means the two systems are not connected.
func TransformFunc(src, dst *Projection) (TransformFn, error) {
	if src.Code() == dst.Code() {
		return identityTransform, nil
	}

	regMu.RLock()
	defer regMu.RUnlock()

	if fn, ok := transforms[transformKey{src.Code(), dst.Code()}]; ok {
		return fn, nil
	}
	toWGS84, ok1 := transforms[transformKey{src.Code(), "EPSG:4326"}]
	fromWGS84, ok2 := transforms[transformKey{"EPSG:4326", dst.Code()}]
	if ok1 && ok2 {
		return compose(toWGS84, fromWGS84), nil
	}
	return nil, fmt.Errorf("proj: no transform from %s to %s", src.Code(), dst.Code())
}

// Equivalent reports whether reprojecting between the two projections
// would be a no-op.
func Equivalent(a, b *Projection) bool {
	if a == b {
		return true
	}
	return a.Code() == b.Code()
}
