package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutuals/internal/poller/models"
	"mutuals/internal/poller/names"
	"mutuals/pkg/domain"
	"mutuals/pkg/testutil"
)

func TestBuild_FinalReportOrdering(t *testing.T) {
	records := []models.ResolvedRecord{
		{Identifier: "111", Name: "alice", GroupCount: 2, Groups: []domain.GroupID{"a", "b"}},
		{Identifier: "222", GroupCount: 0},
	}

	rep := Build(records, nil, Options{FetchGroups: true})

	require.Len(t, rep.Groups, 2)
	assert.Equal(t, "2: [alice]", FormatLine(rep.Groups[0]))
	assert.Equal(t, "0: [222]", FormatLine(rep.Groups[1]))
	assert.Nil(t, rep.Connections)
}

func TestBuild(t *testing.T) {
	testutil.Given(t, "several records sharing counts", func(t *testing.T) {
		records := []models.ResolvedRecord{
			{Identifier: "1", Name: "zed", GroupCount: 1, ConnectionCount: 0},
			{Identifier: "2", Name: "amy", GroupCount: 3, ConnectionCount: 1,
				Connections: []models.Connection{{ID: "9", Name: "nine"}}},
			{Identifier: "3", Name: "bob", GroupCount: 1, ConnectionCount: 1,
				Connections: []models.Connection{{ID: "8"}}},
		}
		store := names.New()
		store.Put("8", "eight")

		rep := Build(records, store, Options{FetchGroups: true, FetchConnections: true})

		testutil.Then(t, "buckets run from highest to lowest", func(t *testing.T) {
			require.Len(t, rep.Groups, 2)
			assert.Equal(t, 3, rep.Groups[0].Count)
			assert.Equal(t, 1, rep.Groups[1].Count)
		})

		testutil.Then(t, "names within a bucket keep record order", func(t *testing.T) {
			assert.Equal(t, []string{"zed", "bob"}, rep.Groups[1].Names)
			assert.Equal(t, Bucket{Count: 1, Names: []string{"amy", "bob"}}, rep.Connections[0])
		})

		testutil.Then(t, "connection names resolve through the name store", func(t *testing.T) {
			require.Len(t, rep.Users, 3)
			assert.Equal(t, []string{"nine"}, rep.Users[1].Connections)
			assert.Equal(t, []string{"eight"}, rep.Users[2].Connections)
		})
	})

	testutil.Given(t, "a record without a name", func(t *testing.T) {
		records := []models.ResolvedRecord{{Identifier: "42"}}

		testutil.When(t, "the name store knows it", func(t *testing.T) {
			store := names.New()
			store.Put("42", "answer")
			rep := Build(records, store, Options{FetchGroups: true})
			assert.Equal(t, []string{"answer"}, rep.Groups[0].Names)
		})

		testutil.When(t, "nothing knows it", func(t *testing.T) {
			rep := Build(records, names.New(), Options{FetchGroups: true})
			assert.Equal(t, []string{"42"}, rep.Groups[0].Names)
		})
	})

	t.Run("no records gives empty histograms", func(t *testing.T) {
		rep := Build(nil, nil, Options{FetchGroups: true, FetchConnections: true})
		assert.Empty(t, rep.Groups)
		assert.Empty(t, rep.Connections)
		assert.Empty(t, rep.Users)
	})
}

func TestHistogram_AtLeast(t *testing.T) {
	h := Histogram{{Count: 3, Names: []string{"a"}}, {Count: 2, Names: []string{"b"}}, {Count: 0, Names: []string{"c"}}}
	assert.Equal(t, Histogram{{Count: 3, Names: []string{"a"}}, {Count: 2, Names: []string{"b"}}}, h.AtLeast(2))
	assert.Len(t, h.AtLeast(0), 3)
	assert.Equal(t, 3, h.Total())
}
