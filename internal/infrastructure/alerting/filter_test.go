package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/registers/stock"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, alert stock.StockAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func alertAt(level stock.StockLevel, qty string, hasOpen bool) stock.StockAlert {
	reorder := types.MustQuantity("10")
	return stock.StockAlert{
		ItemID:        id.New(),
		ItemName:      "Hex bolt M8",
		Level:         level,
		PreviousLevel: stock.LevelOptimal,
		Quantity:      types.MustQuantity(qty),
		ReorderPoint:  &reorder,
		HasOpenOrders: hasOpen,
	}
}

func TestFilter_Allow(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		alert stock.StockAlert
		want  bool
	}{
		{"empty allows", "", alertAt(stock.LevelLow, "5", true), true},
		{"critical only passes critical", `level == "CRITICAL"`, alertAt(stock.LevelCritical, "1", false), true},
		{"critical only drops low", `level == "CRITICAL"`, alertAt(stock.LevelLow, "5", true), false},
		{"quantity threshold", `quantity < 2.5`, alertAt(stock.LevelCritical, "2.25", false), true},
		{"reorder ratio", `has_reorder_point && quantity <= reorder_point / 2.0`, alertAt(stock.LevelLow, "6", true), false},
		{"open orders suppress low", `level == "CRITICAL" || !has_open_orders`, alertAt(stock.LevelLow, "5", true), false},
		{"name match", `item_name.startsWith("Hex")`, alertAt(stock.LevelLow, "5", true), true},
		{"previous level", `previous_level == "OPTIMAL"`, alertAt(stock.LevelLow, "5", true), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			require.NoError(t, err)

			got, err := f.Allow(tt.alert)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_NoReorderPoint(t *testing.T) {
	f, err := NewFilter(`!has_reorder_point && reorder_point == 0.0`)
	require.NoError(t, err)

	alert := alertAt(stock.LevelCritical, "0", false)
	alert.ReorderPoint = nil

	got, err := f.Allow(alert)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNewFilter_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", `level ==`},
		{"unknown variable", `severity == "HIGH"`},
		{"not bool", `quantity + 1.0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestNilFilterAllows(t *testing.T) {
	var f *Filter
	got, err := f.Allow(alertAt(stock.LevelLow, "1", false))
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "", f.String())
}

func TestFilteredNotifier(t *testing.T) {
	f, err := NewFilter(`level == "CRITICAL"`)
	require.NoError(t, err)

	next := &mockNotifier{}
	n := NewFilteredNotifier(next, f)
	ctx := context.Background()

	critical := alertAt(stock.LevelCritical, "0", false)
	next.On("Notify", ctx, critical).Return(nil).Once()

	require.NoError(t, n.Notify(ctx, critical))
	require.NoError(t, n.Notify(ctx, alertAt(stock.LevelLow, "5", true)))

	next.AssertExpectations(t)
	next.AssertNumberOfCalls(t, "Notify", 1)
}
