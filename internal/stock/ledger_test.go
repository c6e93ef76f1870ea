package stock_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arunika-erp/arunika-erp/internal/stock"
	"github.com/arunika-erp/arunika-erp/internal/stock/stocktest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreditCreatesBalanceLazily(t *testing.T) {
	ledger := stocktest.NewLedger()
	ctx := context.Background()
	item := stock.ProductRef(7)

	bal, err := stock.Credit(ctx, ledger, stock.Entry{
		Item:        item,
		WarehouseID: 1,
		Qty:         dec("12.5"),
		Type:        stock.MovementIn,
		Ref:         stock.DocRef{DocType: "goods_receipt", DocID: 1},
	})
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(dec("12.5")))

	movements := ledger.MovementsFor(item, 1)
	require.Len(t, movements, 1)
	require.Equal(t, stock.MovementIn, movements[0].Type)
	require.True(t, movements[0].Qty.Equal(dec("12.5")))
}

func TestDebitChecksSufficiencyUnderLock(t *testing.T) {
	ledger := stocktest.NewLedger()
	ctx := context.Background()
	item := stock.RawMaterialRef(3)
	ledger.Seed(item, 2, dec("10"))

	_, err := stock.Debit(ctx, ledger, stock.Entry{
		Item:        item,
		WarehouseID: 2,
		Qty:         dec("15"),
		Type:        stock.MovementOut,
		Ref:         stock.DocRef{DocType: "raw_material_stock_out", DocID: 4},
	})
	require.Error(t, err)
	ie, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.Len(t, ie.Shortfalls, 1)
	require.True(t, ie.Shortfalls[0].Shortage.Equal(dec("5")))

	// Failed debit writes nothing.
	require.True(t, ledger.Qty(item, 2).Equal(dec("10")))
	require.Empty(t, ledger.MovementsFor(item, 2))

	bal, err := stock.Debit(ctx, ledger, stock.Entry{
		Item:        item,
		WarehouseID: 2,
		Qty:         dec("10"),
		Type:        stock.MovementOut,
		Ref:         stock.DocRef{DocType: "raw_material_stock_out", DocID: 4},
	})
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())
}

func TestDebitMissingBalanceIsShortfall(t *testing.T) {
	ledger := stocktest.NewLedger()

	_, err := stock.Debit(context.Background(), ledger, stock.Entry{
		Item:        stock.ProductRef(9),
		WarehouseID: 1,
		Qty:         dec("1"),
		Type:        stock.MovementOut,
	})
	ie, ok := stock.AsInsufficient(err)
	require.True(t, ok)
	require.True(t, ie.Shortfalls[0].Available.IsZero())
}

func TestApplyRejectsNegativeResult(t *testing.T) {
	ledger := stocktest.NewLedger()
	ctx := context.Background()
	item := stock.ProductRef(4)
	ledger.Seed(item, 1, dec("3"))

	_, err := stock.Apply(ctx, ledger, stock.Entry{
		Item:        item,
		WarehouseID: 1,
		Type:        stock.MovementAdjustment,
		Ref:         stock.DocRef{DocType: "stock_adjustment", DocID: 2},
	}, dec("-5"))
	require.ErrorIs(t, err, stock.ErrNegativeBalance)
	require.True(t, ledger.Qty(item, 1).Equal(dec("3")))

	bal, err := stock.Apply(ctx, ledger, stock.Entry{
		Item:        item,
		WarehouseID: 1,
		Type:        stock.MovementAdjustment,
		Ref:         stock.DocRef{DocType: "stock_adjustment", DocID: 2},
	}, dec("-3"))
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())

	movements := ledger.MovementsFor(item, 1)
	require.Len(t, movements, 1)
	require.True(t, movements[0].Qty.Equal(dec("-3")))
}

func TestConservation(t *testing.T) {
	ledger := stocktest.NewLedger()
	ctx := context.Background()
	item := stock.ProductRef(1)

	_, err := stock.Credit(ctx, ledger, stock.Entry{Item: item, WarehouseID: 1, Qty: dec("100"), Type: stock.MovementIn})
	require.NoError(t, err)
	_, err = stock.Debit(ctx, ledger, stock.Entry{Item: item, WarehouseID: 1, Qty: dec("40"), Type: stock.MovementOut})
	require.NoError(t, err)
	_, err = stock.Apply(ctx, ledger, stock.Entry{Item: item, WarehouseID: 1, Type: stock.MovementAdjustment}, dec("-10"))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, mv := range ledger.MovementsFor(item, 1) {
		switch mv.Type {
		case stock.MovementIn, stock.MovementTransferIn:
			sum = sum.Add(mv.Qty)
		case stock.MovementOut, stock.MovementTransferOut:
			sum = sum.Sub(mv.Qty)
		case stock.MovementAdjustment:
			sum = sum.Add(mv.Qty)
		}
	}
	require.True(t, sum.Equal(ledger.Qty(item, 1)))
	require.True(t, sum.Equal(dec("50")))
}

func TestSortLinesDeterministicOrder(t *testing.T) {
	lines := []stock.Line{
		{Item: stock.RawMaterialRef(2), WarehouseID: 1},
		{Item: stock.ProductRef(5), WarehouseID: 2},
		{Item: stock.ProductRef(5), WarehouseID: 1},
		{Item: stock.ProductRef(1), WarehouseID: 9},
	}
	stock.SortLines(lines, func(l stock.Line) stock.Line { return l })

	require.Equal(t, stock.ProductRef(1), lines[0].Item)
	require.Equal(t, stock.ProductRef(5), lines[1].Item)
	require.Equal(t, int64(1), lines[1].WarehouseID)
	require.Equal(t, int64(2), lines[2].WarehouseID)
	require.Equal(t, stock.RawMaterialRef(2), lines[3].Item)
}
