package calendar

import (
	"io"
	"log/slog"
	"time"

	"staging-cli/internal/model"
)

type Options struct {
	Location *time.Location
	// Now supplies "today" for empty snapshots. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Normalized is the output of the snapshot normalizer.
type Normalized struct {
	FirstSunday time.Time
	Dates       map[int64]time.Time
	// Keys maps each accepted epoch day back to its wire key.
	Keys map[int64]string
}

// Normalize converts every epoch-day key of the snapshot into a local date and anchors the
// grid on the Sunday on or before the earliest one. Malformed keys are dropped and returned
// as warnings; the rest of the snapshot proceeds.
func Normalize(s model.Snapshot, opts Options) (Normalized, []error) {
	loc := opts.location()
	log := opts.logger()

	out := Normalized{
		Dates: make(map[int64]time.Time, len(s.Assignables)),
		Keys:  make(map[int64]string, len(s.Assignables)),
	}
	var warnings []error
	var first *time.Time
	var firstDay int64

	for key := range s.Assignables {
		day, err := ParseEpochDay(key)
		if err != nil {
			log.Warn("dropping assignables with malformed date", "key", key, "error", err)
			warnings = append(warnings, err)
			continue
		}
		if prev, dup := out.Keys[day]; dup {
			// "019000" and "19000" name the same day; keep the canonical spelling.
			if prev == FormatEpochDay(day) {
				continue
			}
		}
		d := LocalDate(day, loc)
		out.Dates[day] = d
		out.Keys[day] = key
		if first == nil || day < firstDay {
			firstDay = day
			dd := d
			first = &dd
		}
	}

	if first == nil {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		today := DateOnly(now().In(loc))
		first = &today
	}
	out.FirstSunday = SundayOf(*first)
	return out, warnings
}
