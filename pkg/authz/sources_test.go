package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecedenceMerge(t *testing.T) {
	var prec Precedence

	legacy := []Grant{
		{Code: "orders:view", Module: "orders"},
		{Code: "orders:delete", Module: "orders"},
		{Code: "reports:view", Module: "reports"},
	}
	scoped := []Grant{
		{Code: "orders:approve", Module: "orders"},
	}
	owned := map[string]struct{}{"orders": {}}

	set := prec.Merge(legacy, scoped, owned)

	// Every legacy grant in an owned module is gone; the rest survive.
	assert.Equal(t, []string{"orders:approve", "reports:view"}, set.sorted())
}

func TestPrecedenceMergeOwnershipIsCaseInsensitive(t *testing.T) {
	var prec Precedence

	legacy := []Grant{{Code: "orders:view", Module: "Orders"}}
	owned := map[string]struct{}{"orders": {}}

	set := prec.Merge(legacy, nil, owned)
	assert.Empty(t, set.sorted())
}

func TestPrecedenceMergeNoOwnership(t *testing.T) {
	var prec Precedence

	legacy := []Grant{{Code: "orders:view", Module: "orders"}}
	scoped := []Grant{{Code: "billing:view", Module: "billing"}}

	set := prec.Merge(legacy, scoped, nil)
	assert.Equal(t, []string{"billing:view", "orders:view"}, set.sorted())
}

func TestPrecedenceMergeDeduplicates(t *testing.T) {
	var prec Precedence

	legacy := []Grant{{Code: "orders:view", Module: "orders"}}
	scoped := []Grant{{Code: "orders:view", Module: "orders"}}

	set := prec.Merge(legacy, scoped, nil)
	assert.Equal(t, []string{"orders:view"}, set.sorted())
}
