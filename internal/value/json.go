package value

import (
	"encoding/json"
)

// MarshalJSON renders the wire form used by the HTTP server and CLI:
// numbers, percentages and magnitudes are strings so decimals survive the
// trip, money and quantities carry their tag, dates are ISO-8601.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"number", FormatDecimal(v.Num)})
	case KindText:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"text", v.Str})
	case KindBoolean:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value bool   `json:"value"`
		}{"boolean", v.Bool})
	case KindDate:
		s := v.Time.Format("2006-01-02")
		if v.HasTime {
			s = v.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"date", s})
	case KindPercentage:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"percentage", FormatDecimal(v.Num)})
	case KindQuantity:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Amount string `json:"amount"`
			Unit   string `json:"unit"`
		}{v.Dim.String(), FormatDecimal(v.Num), v.Unit})
	case KindMoney:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Amount   string `json:"amount"`
			Currency string `json:"currency"`
		}{"money", FormatDecimal(v.Num), v.Currency})
	case KindRegex:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{"regex", v.Str})
	}
	return json.Marshal(nil)
}
