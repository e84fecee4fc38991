package polygon

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// aggregatesResponse is the envelope of /v2/aggs. Results are decoded one by
// one so a malformed bar does not discard the batch.
type aggregatesResponse struct {
	Ticker       string            `json:"ticker"`
	ResultsCount FlexibleInt64     `json:"resultsCount"`
	Status       string            `json:"status"`
	RequestID    string            `json:"request_id"`
	Error        string            `json:"error,omitempty"`
	Results      []json.RawMessage `json:"results"`
}

// referenceResponse is the envelope of /v3/reference/tickers/{ticker}.
type referenceResponse struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Error     string          `json:"error,omitempty"`
	Results   json.RawMessage `json:"results"`
}

// FlexibleInt64 parses int, float (including scientific notation) or numeric strings to int64.
type FlexibleInt64 int64

// UnmarshalJSON parses int or float
func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(int64(val))
		return nil
	}

	var intVal int64
	if err := json.Unmarshal(data, &intVal); err == nil {
		*f = FlexibleInt64(intVal)
		return nil
	}

	var floatVal float64
	if err := json.Unmarshal(data, &floatVal); err == nil {
		*f = FlexibleInt64(int64(floatVal))
		return nil
	}

	return fmt.Errorf("cannot parse as int64: %s", string(data))
}

// Int64 returns int64 value
func (f FlexibleInt64) Int64() int64 {
	return int64(f)
}

// object is one result decoded lazily field by field.
type object map[string]json.RawMessage

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func (o object) floatField(key string) (float64, bool) {
	raw, ok := o[key]
	if !ok || !present(raw) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func (o object) intField(key string) (int64, bool) {
	raw, ok := o[key]
	if !ok || !present(raw) {
		return 0, false
	}
	var v FlexibleInt64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v.Int64(), true
}

func (o object) stringField(key string) (string, bool) {
	raw, ok := o[key]
	if !ok || !present(raw) {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}
