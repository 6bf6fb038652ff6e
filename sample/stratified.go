// Package sample selects a bounded, reproducible subset of normalized review
// records across (category, rating) strata.
package sample

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/hubenschmidt/go-reviewrag/core"
)

// Mode selects the sampler behavior.
type Mode string

const (
	ModeStratified     Mode = "stratified_sample"
	ModeSingleCategory Mode = "single_category"
	ModeFull           Mode = "full"
)

// Options configures a sampling run.
type Options struct {
	Mode           Mode
	TargetRows     int    // global row budget, required unless Mode is full
	PerCategoryCap int    // max rows per category, 0 = uncapped
	SingleCategory string // category filter for ModeSingleCategory
	Seed           int64
}

// StratumCount reports one stratum's population and how many rows it
// contributed to the manifest.
type StratumCount struct {
	Key        core.StratumKey `json:"key"`
	Population int             `json:"population"`
	Selected   int             `json:"selected"`
}

// Manifest is the ordered outcome of a sampling run. ReviewIDs order becomes
// array index order downstream, so it must be stable for a given seed.
type Manifest struct {
	Mode      Mode            `json:"mode"`
	Seed      int64           `json:"seed"`
	Total     int             `json:"total"`
	Strata    []StratumCount  `json:"strata"`
	ReviewIDs []string        `json:"review_ids"`
}

// Sample partitions records into (category, rating) strata, allocates the row
// budget proportionally to stratum population under the per-category cap, and
// selects rows by a seeded deterministic shuffle within each stratum.
//
// Budget freed by strata smaller than their proportional share is
// redistributed largest-remainder-first among under-filled strata, ties
// broken by ascending stratum key. Stratum iteration order is category
// ascending then rating ascending; the manifest concatenates per-stratum
// selections in that order.
//
// The same inputs and seed always produce an identical manifest, and the
// selected records are returned in manifest order.
func Sample(records []core.NormalizedRecord, opts Options) (*Manifest, []core.NormalizedRecord, error) {
	switch opts.Mode {
	case ModeFull:
		return fullManifest(records, opts), records, nil
	case ModeSingleCategory:
		if opts.SingleCategory == "" {
			return nil, nil, errors.New("single_category mode requires a category")
		}
		filtered := make([]core.NormalizedRecord, 0, len(records))
		for _, r := range records {
			if r.Category == opts.SingleCategory {
				filtered = append(filtered, r)
			}
		}
		return stratifiedSample(filtered, opts)
	case ModeStratified:
		return stratifiedSample(records, opts)
	}
	return nil, nil, fmt.Errorf("unknown sampling mode %q", opts.Mode)
}

func fullManifest(records []core.NormalizedRecord, opts Options) *Manifest {
	m := &Manifest{Mode: ModeFull, Seed: opts.Seed, Total: len(records)}
	counts := make(map[core.StratumKey]int)
	for _, r := range records {
		m.ReviewIDs = append(m.ReviewIDs, r.ReviewID)
		counts[stratumOf(r)]++
	}
	for _, key := range sortedKeys(counts) {
		m.Strata = append(m.Strata, StratumCount{Key: key, Population: counts[key], Selected: counts[key]})
	}
	return m
}

func stratifiedSample(records []core.NormalizedRecord, opts Options) (*Manifest, []core.NormalizedRecord, error) {
	if opts.TargetRows <= 0 {
		return nil, nil, errors.New("target_rows_total must be positive")
	}

	strata := make(map[core.StratumKey][]int)
	for i, r := range records {
		key := stratumOf(r)
		strata[key] = append(strata[key], i)
	}
	keys := sortedKeys(strata)

	// Allocate the budget in two proportional passes: categories under the
	// per-category cap, then rating buckets within each category.
	categories, catPopulations := categoryPopulations(keys, strata)
	catAlloc := allocate(opts.TargetRows, catPopulations, capsFor(categories, opts.PerCategoryCap, catPopulations))

	manifest := &Manifest{Mode: opts.Mode, Seed: opts.Seed}
	var selected []core.NormalizedRecord

	for ci, cat := range categories {
		bucketKeys := keysForCategory(keys, cat)
		bucketPops := make([]int, len(bucketKeys))
		for i, key := range bucketKeys {
			bucketPops[i] = len(strata[key])
		}
		bucketAlloc := allocate(catAlloc[ci], bucketPops, bucketPops)

		for i, key := range bucketKeys {
			take := bucketAlloc[i]
			picked := shuffledPick(strata[key], take, opts.Seed, key)
			for _, idx := range picked {
				manifest.ReviewIDs = append(manifest.ReviewIDs, records[idx].ReviewID)
				selected = append(selected, records[idx])
			}
			manifest.Strata = append(manifest.Strata, StratumCount{
				Key:        key,
				Population: len(strata[key]),
				Selected:   take,
			})
		}
	}

	manifest.Total = len(manifest.ReviewIDs)
	return manifest, selected, nil
}

func stratumOf(r core.NormalizedRecord) core.StratumKey {
	return core.StratumKey{Category: r.Category, Rating: r.StarRating}
}

func sortedKeys[V any](m map[core.StratumKey]V) []core.StratumKey {
	keys := make([]core.StratumKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Rating < keys[j].Rating
	})
	return keys
}

func categoryPopulations(keys []core.StratumKey, strata map[core.StratumKey][]int) ([]string, []int) {
	var categories []string
	var pops []int
	for _, key := range keys {
		if len(categories) == 0 || categories[len(categories)-1] != key.Category {
			categories = append(categories, key.Category)
			pops = append(pops, 0)
		}
		pops[len(pops)-1] += len(strata[key])
	}
	return categories, pops
}

func keysForCategory(keys []core.StratumKey, category string) []core.StratumKey {
	var out []core.StratumKey
	for _, key := range keys {
		if key.Category == category {
			out = append(out, key)
		}
	}
	return out
}

func capsFor(categories []string, limit int, pops []int) []int {
	caps := make([]int, len(categories))
	for i := range categories {
		caps[i] = pops[i]
		if limit > 0 && limit < caps[i] {
			caps[i] = limit
		}
	}
	return caps
}

// allocate splits budget across groups proportionally to population, clipped
// to limits. Unused budget is redistributed largest-remainder-first, ties by
// ascending group index, one row at a time until the budget or every group is
// exhausted.
func allocate(budget int, populations, limits []int) []int {
	n := len(populations)
	alloc := make([]int, n)
	if n == 0 || budget <= 0 {
		return alloc
	}

	total := 0
	for _, p := range populations {
		total += p
	}
	if total == 0 {
		return alloc
	}

	remainders := make([]float64, n)
	used := 0
	for i, p := range populations {
		ideal := float64(budget) * float64(p) / float64(total)
		alloc[i] = int(math.Floor(ideal))
		remainders[i] = ideal - math.Floor(ideal)
		if alloc[i] > limits[i] {
			alloc[i] = limits[i]
		}
		used += alloc[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	for leftover := budget - used; leftover > 0; {
		gave := false
		for _, i := range order {
			if leftover == 0 {
				break
			}
			if alloc[i] < limits[i] {
				alloc[i]++
				leftover--
				gave = true
			}
		}
		if !gave {
			break
		}
	}

	return alloc
}

// shuffledPick returns the first n indices of a deterministic shuffle of
// stratum members. The shuffle seed mixes the run seed with the stratum key
// so strata are independent but reproducible.
func shuffledPick(members []int, n int, seed int64, key core.StratumKey) []int {
	if n <= 0 {
		return nil
	}
	if n > len(members) {
		n = len(members)
	}

	shuffled := make([]int, len(members))
	copy(shuffled, members)

	r := rand.New(rand.NewSource(seed ^ stratumSeed(key)))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:n]
}

func stratumSeed(key core.StratumKey) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", key.Category, key.Rating)
	return int64(h.Sum64())
}
