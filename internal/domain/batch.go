package domain

import "sort"

// Prepare orders decoded records into a batch: a stable chronological
// ascending sort (satellite delivery order is not reliable; equal
// timestamps keep their arrival order) with records inside any exclusion
// window removed. Downstream stages assume the batch is never reordered
// after this point.
func Prepare(records []Record, exclusions []Window) []Record {
	batch := make([]Record, 0, len(records))
	for _, r := range records {
		if excluded(r, exclusions) {
			continue
		}
		batch = append(batch, r)
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Time.Before(batch[j].Time)
	})
	return batch
}

func excluded(r Record, exclusions []Window) bool {
	for _, w := range exclusions {
		if w.Contains(r.Time) {
			return true
		}
	}
	return false
}
