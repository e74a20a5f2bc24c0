package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/rangemigrate/internal/domain"
)

func TestPlanPartitionCoverage(t *testing.T) {
	plan := Plan(5, 2)
	assert.Equal(t, []domain.BatchPlanEntry{
		{BatchIndex: 0, Offset: 0, Limit: 2},
		{BatchIndex: 1, Offset: 2, Limit: 2},
		{BatchIndex: 2, Offset: 4, Limit: 1},
	}, plan.Entries)

	var covered int64
	for _, e := range plan.Entries {
		covered += e.Limit
	}
	assert.Equal(t, plan.TotalRows, covered)
}

func TestPlanEmptyForZeroRows(t *testing.T) {
	plan := Plan(0, 1000)
	assert.Empty(t, plan.Entries)
	assert.Equal(t, int64(0), plan.TotalRows)
}

func TestPlanExactMultiple(t *testing.T) {
	plan := Plan(10, 5)
	assert.Len(t, plan.Entries, 2)
	assert.Equal(t, int64(5), plan.Entries[0].Limit)
	assert.Equal(t, int64(5), plan.Entries[1].Limit)
}

func TestPlanDeterministic(t *testing.T) {
	a := Plan(17, 4)
	b := Plan(17, 4)
	assert.Equal(t, a, b)
}

func TestPlanBatchIndexMatchesOffsetDivision(t *testing.T) {
	plan := Plan(23, 7)
	for _, e := range plan.Entries {
		assert.Equal(t, e.Offset/7, int64(e.BatchIndex))
	}
}
