package assembly

import "golang.org/x/sync/errgroup"

// forEachOrdered runs fn(0..n-1) with at most limit calls in flight. Every
// call runs to completion; the returned error belongs to the lowest failing
// index so that reports follow caller order rather than scheduling order.
func forEachOrdered(n, limit int, fn func(i int) error) (int, error) {
	if limit < 1 {
		limit = 1
	}
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = safeCall(fn, i)
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

func safeCall(fn func(i int) error, i int) (err error) {
	defer recoverPanic(&err, "decode")
	return fn(i)
}
