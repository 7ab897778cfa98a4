package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "event-router/internal/common/errors"
)

func doc(payload map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"event_type": "order.created",
		"payload":    payload,
		"metadata":   map[string]interface{}{"source": "api"},
	}
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition map[string]interface{}
		doc       map[string]interface{}
		want      bool
	}{
		{
			name:      "empty condition matches everything",
			condition: map[string]interface{}{},
			doc:       doc(map[string]interface{}{"total": 5.0}),
			want:      true,
		},
		{
			name:      "implicit equality on string",
			condition: map[string]interface{}{"payload.status": "paid"},
			doc:       doc(map[string]interface{}{"status": "paid"}),
			want:      true,
		},
		{
			name:      "implicit equality mismatch",
			condition: map[string]interface{}{"payload.status": "paid"},
			doc:       doc(map[string]interface{}{"status": "pending"}),
			want:      false,
		},
		{
			name:      "explicit eq on number",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$eq": 100.0}},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      true,
		},
		{
			name:      "gt matches",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$gt": 100.0}},
			doc:       doc(map[string]interface{}{"total": 150.0}),
			want:      true,
		},
		{
			name:      "gt boundary is exclusive",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$gt": 100.0}},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      false,
		},
		{
			name:      "gte boundary is inclusive",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$gte": 100.0}},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      true,
		},
		{
			name:      "lt matches",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$lt": 100.0}},
			doc:       doc(map[string]interface{}{"total": 50.0}),
			want:      true,
		},
		{
			name:      "lte boundary is inclusive",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$lte": 100.0}},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      true,
		},
		{
			name:      "numeric comparison against string value fails quietly",
			condition: map[string]interface{}{"payload.total": map[string]interface{}{"$gt": 100.0}},
			doc:       doc(map[string]interface{}{"total": "150"}),
			want:      false,
		},
		{
			name:      "string never equals number",
			condition: map[string]interface{}{"payload.total": "100"},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      false,
		},
		{
			name:      "ne on differing value",
			condition: map[string]interface{}{"payload.status": map[string]interface{}{"$ne": "failed"}},
			doc:       doc(map[string]interface{}{"status": "paid"}),
			want:      true,
		},
		{
			name:      "ne matches when field is absent",
			condition: map[string]interface{}{"payload.status": map[string]interface{}{"$ne": "failed"}},
			doc:       doc(map[string]interface{}{"total": 1.0}),
			want:      true,
		},
		{
			name:      "exists true",
			condition: map[string]interface{}{"payload.coupon": map[string]interface{}{"$exists": true}},
			doc:       doc(map[string]interface{}{"coupon": "SAVE10"}),
			want:      true,
		},
		{
			name:      "exists false on absent field",
			condition: map[string]interface{}{"payload.coupon": map[string]interface{}{"$exists": false}},
			doc:       doc(map[string]interface{}{"total": 1.0}),
			want:      true,
		},
		{
			name:      "exists true on null value still counts as present",
			condition: map[string]interface{}{"payload.coupon": map[string]interface{}{"$exists": true}},
			doc:       doc(map[string]interface{}{"coupon": nil}),
			want:      true,
		},
		{
			name: "multiple fields combine with AND",
			condition: map[string]interface{}{
				"payload.status": "paid",
				"payload.total":  map[string]interface{}{"$gte": 50.0},
			},
			doc:  doc(map[string]interface{}{"status": "paid", "total": 75.0}),
			want: true,
		},
		{
			name: "AND fails when one clause fails",
			condition: map[string]interface{}{
				"payload.status": "paid",
				"payload.total":  map[string]interface{}{"$gte": 50.0},
			},
			doc:  doc(map[string]interface{}{"status": "paid", "total": 10.0}),
			want: false,
		},
		{
			name:      "deep path through nested maps",
			condition: map[string]interface{}{"payload.customer.address.country": "DE"},
			doc: doc(map[string]interface{}{
				"customer": map[string]interface{}{
					"address": map[string]interface{}{"country": "DE"},
				},
			}),
			want: true,
		},
		{
			name:      "path through a scalar is absent",
			condition: map[string]interface{}{"payload.total.amount": 5.0},
			doc:       doc(map[string]interface{}{"total": 100.0}),
			want:      false,
		},
		{
			name:      "event_type field is addressable",
			condition: map[string]interface{}{"event_type": "order.created"},
			doc:       doc(map[string]interface{}{}),
			want:      true,
		},
		{
			name:      "metadata field is addressable",
			condition: map[string]interface{}{"metadata.source": "api"},
			doc:       doc(map[string]interface{}{}),
			want:      true,
		},
		{
			name:      "comparing equal integer and float",
			condition: map[string]interface{}{"payload.count": 3},
			doc:       doc(map[string]interface{}{"count": 3.0}),
			want:      true,
		},
		{
			name:      "nested object literal equality",
			condition: map[string]interface{}{"payload.tags": map[string]interface{}{"env": "prod"}},
			doc:       doc(map[string]interface{}{"tags": map[string]interface{}{"env": "prod"}}),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.condition, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateConditionErrors(t *testing.T) {
	t.Run("unknown operator", func(t *testing.T) {
		_, err := EvaluateCondition(
			map[string]interface{}{"payload.total": map[string]interface{}{"$regex": ".*"}},
			doc(map[string]interface{}{"total": 1.0}))
		require.Error(t, err)
		assert.True(t, commonerrors.IsType(err, commonerrors.ErrTypeRuleEvaluation))
	})

	t.Run("non-numeric operand on gt", func(t *testing.T) {
		_, err := EvaluateCondition(
			map[string]interface{}{"payload.total": map[string]interface{}{"$gt": "100"}},
			doc(map[string]interface{}{"total": 150.0}))
		require.Error(t, err)
		assert.True(t, commonerrors.IsType(err, commonerrors.ErrTypeRuleEvaluation))
	})

	t.Run("non-boolean operand on exists", func(t *testing.T) {
		_, err := EvaluateCondition(
			map[string]interface{}{"payload.total": map[string]interface{}{"$exists": "yes"}},
			doc(map[string]interface{}{"total": 1.0}))
		require.Error(t, err)
		assert.True(t, commonerrors.IsType(err, commonerrors.ErrTypeRuleEvaluation))
	})
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, ValidateCondition(map[string]interface{}{
		"payload.total": map[string]interface{}{"$gt": 10.0},
		"payload.type":  "sale",
	}))

	assert.Error(t, ValidateCondition(map[string]interface{}{
		"payload.total": map[string]interface{}{"$near": 10.0},
	}))
	assert.Error(t, ValidateCondition(map[string]interface{}{
		"payload.total": map[string]interface{}{"$lt": "ten"},
	}))
	assert.Error(t, ValidateCondition(map[string]interface{}{
		"payload.flag": map[string]interface{}{"$exists": 1.0},
	}))
	assert.Error(t, ValidateCondition(map[string]interface{}{
		"": "value",
	}))
}
