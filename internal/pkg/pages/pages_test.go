package pages_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pagepulse/internal/pkg/pages"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/checkout", pages.CategoryCheckout},
		{"/checkout/step-2", pages.CategoryCheckout},
		{"/cart", pages.CategoryCheckout},
		{"/billing/history", pages.CategoryCheckout},
		{"/PAYMENT", pages.CategoryCheckout},
		{"/login", pages.CategoryAuth},
		{"/signup", pages.CategoryAuth},
		{"/account/settings", pages.CategoryAuth},
		{"/products/widget-a", pages.CategoryProduct},
		{"/product", pages.CategoryProduct},
		{"/pricing", pages.CategoryProduct},
		{"/plans/enterprise", pages.CategoryProduct},
		{"/blog/launch-announcement", pages.CategoryContent},
		{"/docs/getting-started", pages.CategoryContent},
		{"/help", pages.CategoryContent},
		{"/guides/setup", pages.CategoryContent},
		{"/", pages.CategoryLanding},
		{"/about", pages.CategoryGeneral},
		{"/contact", pages.CategoryGeneral},
		{"", pages.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, pages.Classify(tt.path))
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// Checkout patterns outrank product patterns
	assert.Equal(t, pages.CategoryCheckout, pages.Classify("/products/checkout"))
}

func TestIsCheckout(t *testing.T) {
	assert.True(t, pages.IsCheckout("/checkout"))
	assert.True(t, pages.IsCheckout("/cart/items"))
	assert.False(t, pages.IsCheckout("/products/widget-a"))
	assert.False(t, pages.IsCheckout("/"))
}
