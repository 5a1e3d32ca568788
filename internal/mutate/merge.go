package mutate

import (
	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

// Merge applies a server delta to s and returns the patched snapshot. s is not modified:
// the result gets new top-level maps, new maps for the days it touches, and shares every
// untouched day with s.
//
// Updates are upserts by key. An assignable index that moves to a new day leaves its old day.
// Deletions remove keys; days left empty are dropped. Update keys that are not valid epoch
// days are skipped and returned as warnings.
func Merge(s model.Snapshot, d model.Delta) (model.Snapshot, []error) {
	out := s.Clone()
	var warnings []error

	// Existing keys by epoch day, so "019000" and "19000" land in the same bucket.
	keyOf := make(map[int64]string, len(out.Assignables))
	for key := range out.Assignables {
		if day, err := calendar.ParseEpochDay(key); err == nil {
			keyOf[day] = key
		}
	}
	dayOf := make(map[int]string)
	for key, recs := range out.Assignables {
		for idx := range recs {
			dayOf[idx] = key
		}
	}

	copied := map[string]bool{}
	bucket := func(key string) map[int]model.AssignableRecord {
		if !copied[key] {
			next := make(map[int]model.AssignableRecord, len(out.Assignables[key])+1)
			for k, v := range out.Assignables[key] {
				next[k] = v
			}
			out.Assignables[key] = next
			copied[key] = true
		}
		return out.Assignables[key]
	}
	remove := func(idx int) {
		key, ok := dayOf[idx]
		if !ok {
			return
		}
		b := bucket(key)
		delete(b, idx)
		delete(dayOf, idx)
		if len(b) == 0 {
			delete(out.Assignables, key)
			delete(copied, key)
			if day, err := calendar.ParseEpochDay(key); err == nil && keyOf[day] == key {
				delete(keyOf, day)
			}
		}
	}

	for rawKey, recs := range d.Updates.Assignables {
		day, err := calendar.ParseEpochDay(rawKey)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		key, ok := keyOf[day]
		if !ok {
			key = calendar.FormatEpochDay(day)
			keyOf[day] = key
		}
		for idx, rec := range recs {
			if prev, ok := dayOf[idx]; ok && prev != key {
				remove(idx)
			}
			bucket(key)[idx] = rec.Clone()
			dayOf[idx] = key
		}
	}
	for idx, rec := range d.Updates.Constraints {
		out.Constraints[idx] = rec.Clone()
	}
	for idx, rec := range d.Updates.Summaries {
		out.Summaries[idx] = rec
	}

	for _, idx := range d.Deletions.Assignables {
		remove(idx)
	}
	for _, idx := range d.Deletions.Constraints {
		delete(out.Constraints, idx)
	}
	return out, warnings
}
