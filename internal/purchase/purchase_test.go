package purchase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/purchase"
)

func requireValidationError(t *testing.T, err error) {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := &purchase.Service{}
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "u1", purchase.CreateInput{WarehouseID: "wh-1"})
	requireValidationError(t, err)

	_, err = svc.Create(ctx, "t1", "u1", purchase.CreateInput{DealerName: "Dealer", WarehouseID: "wh-1"})
	requireValidationError(t, err)

	_, err = svc.Create(ctx, "t1", "u1", purchase.CreateInput{
		DealerName:  "Dealer",
		WarehouseID: "wh-1",
		Items:       []purchase.ItemInput{{ProductID: "p1", ItemsPerBox: 0, QuantityBoxes: 1}},
	})
	requireValidationError(t, err)

	_, err = svc.Create(ctx, "t1", "u1", purchase.CreateInput{
		DealerName:  "Dealer",
		WarehouseID: "wh-1",
		Items:       []purchase.ItemInput{{ProductID: "p1", ItemsPerBox: 12}},
	})
	requireValidationError(t, err)

	_, err = svc.Create(ctx, "t1", "u1", purchase.CreateInput{
		DealerName:  "Dealer",
		WarehouseID: "wh-1",
		Items:       []purchase.ItemInput{{ProductID: "p1", ItemsPerBox: 12, QuantityBoxes: 1, UnitCost: -1}},
	})
	requireValidationError(t, err)
}
