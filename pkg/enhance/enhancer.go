// Package enhance computes derived, non-authoritative fields per POS record.
// Enhancement is pure: no I/O, no clock access (the extraction time is passed
// in), and original fields are never overwritten. Missing or null inputs
// yield nil derived values instead of errors.
package enhance

import (
	"strings"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/schema"
)

// Stock level classification buckets, ordered
const (
	StockOutOfStock = "out_of_stock"
	StockLow        = "low"
	StockMedium     = "medium"
	StockHigh       = "high"
)

// Quantity thresholds for stock level classification
const (
	lowStockThreshold    = 10
	mediumStockThreshold = 50
)

// DerivedColumns returns the derived columns Enhance adds for an entity.
// The sync pipeline extends the resolved entity schema with these so that
// enhanced records stay within the declared column map.
func DerivedColumns(entity string) map[string]schema.FieldType {
	switch entity {
	case "article":
		return map[string]schema.FieldType{
			"profit_margin":         schema.FieldTypeFloat,
			"profit_margin_percent": schema.FieldTypeFloat,
			"has_negative_price":    schema.FieldTypeBoolean,
		}
	case "customer":
		return map[string]schema.FieldType{
			"full_address":  schema.FieldTypeString,
			"missing_email": schema.FieldTypeBoolean,
		}
	case "shop":
		return map[string]schema.FieldType{
			"full_address": schema.FieldTypeString,
		}
	case "sale":
		return map[string]schema.FieldType{
			"age_days":           schema.FieldTypeInteger,
			"has_negative_total": schema.FieldTypeBoolean,
		}
	case "stock":
		return map[string]schema.FieldType{
			"stock_level":           schema.FieldTypeString,
			"has_negative_quantity": schema.FieldTypeBoolean,
		}
	default:
		return nil
	}
}

// Enhance returns a new map holding all original fields of the record plus
// the derived fields for the entity. asOf anchors age computations to the
// extraction time so repeated calls produce identical output.
func Enhance(entity string, data map[string]interface{}, asOf time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+6)
	for k, v := range data {
		out[k] = v
	}

	switch entity {
	case "article":
		enhanceArticle(out)
	case "customer":
		enhanceCustomer(out)
	case "shop":
		out["full_address"] = compositeAddress(out)
	case "sale":
		enhanceSale(out, asOf)
	case "stock":
		enhanceStock(out)
	}

	return out
}

func enhanceArticle(out map[string]interface{}) {
	retail, haveRetail := numberOf(out["price_retail"])
	purchase, havePurchase := numberOf(out["price_purchase"])

	if haveRetail && havePurchase {
		out["profit_margin"] = retail - purchase
		if purchase != 0 {
			out["profit_margin_percent"] = (retail - purchase) / purchase * 100
		} else {
			out["profit_margin_percent"] = nil
		}
		out["has_negative_price"] = retail < 0 || purchase < 0
	} else {
		out["profit_margin"] = nil
		out["profit_margin_percent"] = nil
		if haveRetail || havePurchase {
			out["has_negative_price"] = (haveRetail && retail < 0) || (havePurchase && purchase < 0)
		} else {
			out["has_negative_price"] = nil
		}
	}
}

func enhanceCustomer(out map[string]interface{}) {
	out["full_address"] = compositeAddress(out)

	email, _ := out["email"].(string)
	out["missing_email"] = strings.TrimSpace(email) == ""
}

func enhanceSale(out map[string]interface{}, asOf time.Time) {
	out["age_days"] = ageDays(out, asOf)

	if total, ok := numberOf(out["total"]); ok {
		out["has_negative_total"] = total < 0
	} else {
		out["has_negative_total"] = nil
	}
}

func enhanceStock(out map[string]interface{}) {
	quantity, ok := numberOf(out["quantity"])
	if !ok {
		out["stock_level"] = nil
		out["has_negative_quantity"] = nil
		return
	}

	out["has_negative_quantity"] = quantity < 0
	switch {
	case quantity <= 0:
		out["stock_level"] = StockOutOfStock
	case quantity < lowStockThreshold:
		out["stock_level"] = StockLow
	case quantity < mediumStockThreshold:
		out["stock_level"] = StockMedium
	default:
		out["stock_level"] = StockHigh
	}
}

// compositeAddress joins the address component fields that are present
func compositeAddress(data map[string]interface{}) interface{} {
	parts := make([]string, 0, 4)
	for _, field := range [...]string{"street", "zip", "city", "country"} {
		if s, ok := data[field].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, ", ")
}

// ageDays computes whole days between the record's sale timestamp and asOf
func ageDays(data map[string]interface{}, asOf time.Time) interface{} {
	for _, field := range [...]string{"sale_date", "created_at"} {
		s, ok := data[field].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			continue
		}
		days := int64(asOf.Sub(ts).Hours() / 24)
		if days < 0 {
			days = 0
		}
		return days
	}
	return nil
}

// numberOf extracts a numeric value from a decoded JSON field
func numberOf(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
