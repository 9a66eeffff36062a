package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Float returns p[key] as a finite float64. ok is false when the key is absent.
func (p Params) Float(key string) (float64, bool, error) {
	f, ok, err := p.number(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, ErrInvalidParam(key, "expected finite number, got %v", f)
	}
	return f, true, nil
}

func (p Params) number(key string) (float64, bool, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch x := raw.(type) {
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, true, ErrInvalidParam(key, "%v", err)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, true, ErrInvalidParam(key, "%v", err)
		}
		return f, true, nil
	}
	return 0, true, ErrInvalidParam(key, "expected number, got %T", raw)
}

// Int returns p[key] as an int. Fractional and out of range values are
// rejected.
func (p Params) Int(key string) (int, bool, error) {
	f, ok, err := p.Float(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, true, ErrInvalidParam(key, "expected integer, got %v", f)
	}
	return int(f), true, nil
}
