// Package report aggregates resolved records into count histograms and
// renders them to the results file and the console.
package report

import (
	"cmp"
	"slices"

	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
)

// Bucket is one histogram line: every display name sharing Count.
type Bucket struct {
	Count int
	Names []string
}

// Histogram lists buckets from the highest count to the lowest. Names within
// a bucket keep the order their records were given in.
type Histogram []Bucket

// Total is the number of names across all buckets.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h {
		n += len(b.Names)
	}
	return n
}

// AtLeast returns the buckets whose count is threshold or more.
func (h Histogram) AtLeast(threshold int) Histogram {
	out := make(Histogram, 0, len(h))
	for _, b := range h {
		if b.Count >= threshold {
			out = append(out, b)
		}
	}
	return out
}

// NameResolver turns an identifier into a display name.
type NameResolver interface {
	DisplayName(id domain.UserID) string
}

// UserEntry is the per-record detail listed after the histograms.
type UserEntry struct {
	Name        string
	Identifier  domain.UserID
	Groups      []domain.GroupID
	Connections []string
}

// Report is the aggregated view of one run.
type Report struct {
	FetchGroups      bool
	FetchConnections bool
	Groups           Histogram
	Connections      Histogram
	Users            []UserEntry
	Stats            models.RunStats
}

// Options selects which histograms are built.
type Options struct {
	FetchGroups      bool
	FetchConnections bool
	Stats            models.RunStats
}

// Build aggregates records. It is a pure function of its inputs; names may be
// nil, in which case only names carried on the records are used.
func Build(records []models.ResolvedRecord, names NameResolver, opts Options) Report {
	display := func(id domain.UserID, known string) string {
		if known != "" {
			return known
		}
		if names != nil {
			return names.DisplayName(id)
		}
		return id.String()
	}

	rep := Report{
		FetchGroups:      opts.FetchGroups,
		FetchConnections: opts.FetchConnections,
		Users:            make([]UserEntry, 0, len(records)),
		Stats:            opts.Stats,
	}

	labels := make([]string, len(records))
	for i, rec := range records {
		labels[i] = display(rec.Identifier, rec.Name)

		entry := UserEntry{Name: labels[i], Identifier: rec.Identifier, Groups: rec.Groups}
		for _, c := range rec.Connections {
			entry.Connections = append(entry.Connections, display(c.ID, c.Name))
		}
		rep.Users = append(rep.Users, entry)
	}

	if opts.FetchGroups {
		rep.Groups = histogram(records, labels, func(r models.ResolvedRecord) int { return r.GroupCount })
	}
	if opts.FetchConnections {
		rep.Connections = histogram(records, labels, func(r models.ResolvedRecord) int { return r.ConnectionCount })
	}
	return rep
}

func histogram(records []models.ResolvedRecord, labels []string, count func(models.ResolvedRecord) int) Histogram {
	index := make(map[int]int)
	var h Histogram
	for i, rec := range records {
		c := count(rec)
		pos, ok := index[c]
		if !ok {
			pos = len(h)
			index[c] = pos
			h = append(h, Bucket{Count: c})
		}
		h[pos].Names = append(h[pos].Names, labels[i])
	}
	slices.SortStableFunc(h, func(a, b Bucket) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return h
}
