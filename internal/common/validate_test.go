package common_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/common"
)

type lineBody struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type orderBody struct {
	Name  string     `json:"name" validate:"required"`
	Lines []lineBody `json:"lines" validate:"min=1,dive"`
}

func TestValidateStructPasses(t *testing.T) {
	err := common.ValidateStruct(orderBody{
		Name:  "ok",
		Lines: []lineBody{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := common.ValidateStruct(orderBody{
		Lines: []lineBody{{Quantity: 0}},
	})
	require.Error(t, err)

	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "VALIDATION_ERROR", app.Code)
	require.Equal(t, http.StatusBadRequest, app.HTTPStatus)

	details, ok := app.Details.([]string)
	require.True(t, ok)
	require.Contains(t, details, "name is required")
	require.Contains(t, details, "lines[0].productId is required")
	require.Contains(t, details, "lines[0].quantity must be greater than 0")
}

func TestValidateStructRejectsEmptySlice(t *testing.T) {
	err := common.ValidateStruct(orderBody{Name: "ok"})
	require.Error(t, err)

	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "VALIDATION_ERROR", app.Code)
}
