package report

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
)

func recordsFromCounts(groups, conns []int) []models.ResolvedRecord {
	records := make([]models.ResolvedRecord, len(groups))
	for i, g := range groups {
		c := 0
		if i < len(conns) {
			c = conns[i]
		}
		records[i] = models.ResolvedRecord{
			Identifier:      domain.UserID(strconv.Itoa(i + 1)),
			GroupCount:      g,
			ConnectionCount: c,
		}
	}
	return records
}

// TestHistogramProperties checks the aggregation invariants for arbitrary record sets.
func TestHistogramProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	counts := gen.SliceOf(gen.IntRange(0, 12))

	properties.Property("every record lands in exactly one bucket", prop.ForAll(
		func(groups, conns []int) bool {
			records := recordsFromCounts(groups, conns)
			rep := Build(records, nil, Options{FetchGroups: true, FetchConnections: true})
			return rep.Groups.Total() == len(records) && rep.Connections.Total() == len(records)
		},
		counts, counts,
	))

	properties.Property("buckets are strictly descending and unique", prop.ForAll(
		func(groups []int) bool {
			rep := Build(recordsFromCounts(groups, nil), nil, Options{FetchGroups: true})
			for i := 1; i < len(rep.Groups); i++ {
				if rep.Groups[i-1].Count <= rep.Groups[i].Count {
					return false
				}
			}
			return true
		},
		counts,
	))

	properties.Property("bucket members all carry the bucket count", prop.ForAll(
		func(groups []int) bool {
			records := recordsFromCounts(groups, nil)
			byName := make(map[string]int, len(records))
			for _, r := range records {
				byName[r.DisplayName()] = r.GroupCount
			}
			rep := Build(records, nil, Options{FetchGroups: true})
			for _, b := range rep.Groups {
				for _, n := range b.Names {
					if byName[n] != b.Count {
						return false
					}
				}
			}
			return true
		},
		counts,
	))

	properties.TestingRun(t)
}
