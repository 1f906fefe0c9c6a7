package features

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/payment"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/mapper"
)

// schemaMap decodes an endpoint's declarative response schema.
func schemaMap(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var mapping map[string]any
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return map[string]any{}
	}
	return mapping
}

// projectOne projects the response tree and keeps the first record.
func projectOne(input any, mapping map[string]any) map[string]any {
	rows := mapper.Project(input, mapping)
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func floatOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func int64Of(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// providerTimeLayouts are the timestamp shapes providers are known to send.
var providerTimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeOf parses a provider timestamp, trying the known layouts.
func timeOf(v any) *time.Time {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range providerTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// firstOf returns the first non-nil value among the record keys.
func firstOf(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// paymentResult normalizes a projected provider record into the payment
// verdict. Peer services report amount/start_timestamp/end_timestamp while
// direct providers report price_paid/paid_date/expiry_date; both shapes are
// accepted.
func paymentResult(record map[string]any, mapping map[string]any) (payment.Result, *time.Time) {
	res := payment.Result{Action: domain.ActionPaid}
	if action := stringOf(mapping["action_type"]); action != "" {
		res.Action = domain.LogAction(action)
	}
	if price, ok := floatOf(firstOf(record, "price_paid", "amount")); ok {
		res.PricePaid = &price
	}
	paidDate := timeOf(firstOf(record, "paid_date", "start_timestamp"))
	res.ExpiryDate = timeOf(firstOf(record, "expiry_date", "end_timestamp"))
	res.Meta = datatypes.JSONMap(record)
	return res, paidDate
}
