package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func details(results ...DetailResult) []*AllocDetail {
	out := make([]*AllocDetail, 0, len(results))
	for _, r := range results {
		out = append(out, &AllocDetail{Result: r})
	}
	return out
}

func TestResolveOrderResult(t *testing.T) {
	tests := []struct {
		name    string
		details []*AllocDetail
		want    OrderResult
	}{
		{"Any pending", details(DetailSuccess, DetailPending), OrderAllPending},
		{"Unknown result counts as pending", details(DetailResult("")), OrderAllPending},
		{"All success", details(DetailSuccess, DetailSuccess), OrderAllSuccess},
		{"Ignored details are skipped", details(DetailSuccess, DetailIgnore), OrderAllSuccess},
		{"All failed", details(DetailFail, DetailFail, DetailIgnore), OrderAllFailed},
		{"Partial", details(DetailFail, DetailSuccess), OrderPartSuccess},
		{"Nothing to allocate", details(DetailIgnore), OrderAllSuccess},
		{"Empty", nil, OrderAllSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveOrderResult(tt.details))
		})
	}
}

func TestAllocOrder_Refresh(t *testing.T) {
	now := time.Now()

	t.Run("Pending order has no finish time", func(t *testing.T) {
		o := &AllocOrder{Details: details(DetailPending)}
		o.Refresh(now)
		assert.Equal(t, OrderAllPending, o.Result)
		assert.Nil(t, o.FinishTime)
	})

	t.Run("Finished order keeps first finish time", func(t *testing.T) {
		o := &AllocOrder{Details: details(DetailSuccess, DetailFail)}
		o.Refresh(now)
		assert.Equal(t, OrderPartSuccess, o.Result)
		assert.Equal(t, now, *o.FinishTime)

		o.Refresh(now.Add(time.Hour))
		assert.Equal(t, now, *o.FinishTime)
	})
}
