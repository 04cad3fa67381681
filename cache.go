/*
Copyright © 2019 the OceanBudget authors.
This file is part of OceanBudget.

OceanBudget is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanBudget is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanBudget.  If not, see <http://www.gnu.org/licenses/>.
*/

package oceanbudget

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// weightCache is a bounded, concurrency-safe cache of stencil weights.
// Cached slices are shared between callers and are never modified.
type weightCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newWeightCache(maxEntries int) *weightCache {
	return &weightCache{cache: lru.New(maxEntries)}
}

// get returns the weights stored under key, calling compute to create
// them if they are not cached. Errors are not cached.
func (w *weightCache) get(key lru.Key, compute func() ([]float64, error)) ([]float64, error) {
	w.mu.Lock()
	v, ok := w.cache.Get(key)
	w.mu.Unlock()
	if ok {
		return v.([]float64), nil
	}
	weights, err := compute()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.cache.Add(key, weights)
	w.mu.Unlock()
	return weights, nil
}
