package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/catalog"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Dawn Soap 100g":   "dawn-soap-100g",
		"  Rice (5 kg)  ":  "rice-5-kg",
		"Already-Slugged":  "already-slugged",
		"UPPER & lower!!!": "upper-lower",
	}
	for in, want := range cases {
		assert.Equal(t, want, catalog.Slugify(in), "input %q", in)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc := &catalog.Service{}

	cases := []struct {
		name string
		in   catalog.ProductInput
	}{
		{"missing name", catalog.ProductInput{SellingPrice: 10, ItemsPerBox: 1}},
		{"negative price", catalog.ProductInput{Name: "Soap", SellingPrice: -1, ItemsPerBox: 1}},
		{"tax above 100", catalog.ProductInput{Name: "Soap", SellingPrice: 10, TaxPercent: 120, ItemsPerBox: 1}},
		{"zero items per box", catalog.ProductInput{Name: "Soap", SellingPrice: 10, ItemsPerBox: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateProduct(context.Background(), "t1", tc.in)
			require.Error(t, err)
		})
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	svc := &catalog.Service{}
	_, err := svc.CreateCategory(context.Background(), "t1", catalog.CategoryInput{Name: "   "})
	require.Error(t, err)
}
