package variation

import (
	"fmt"
	"math"
	"strconv"

	"stdimage/internal/models"
)

var tupleKeys = []string{"width", "height", "crop", "resample"}

func fromTuple(spec *models.VariationSpec, values []interface{}) error {
	if len(values) < 2 || len(values) > len(tupleKeys) {
		return models.NewConfigError(fmt.Sprintf(
			"variation %q: expected (width, height[, crop[, resample]]), got %d values", spec.Name, len(values)))
	}
	m := make(map[string]interface{}, len(values))
	for i, v := range values {
		m[tupleKeys[i]] = v
	}
	return fromMap(spec, m)
}

func fromMap(spec *models.VariationSpec, m map[string]interface{}) error {
	for key, value := range m {
		var err error
		switch key {
		case "width":
			spec.Width, err = toInt(value)
		case "height":
			spec.Height, err = toInt(value)
		case "crop":
			spec.Crop, err = toBool(value)
		case "resample":
			spec.Resample, err = toResample(value)
		case "watermark":
			spec.Watermark = fmt.Sprint(value)
		default:
			err = fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			return models.NewConfigError(fmt.Sprintf("variation %q: %s: %v", spec.Name, key, err))
		}
	}
	return nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	}
	return false, fmt.Errorf("unsupported type %T", v)
}

func toResample(v interface{}) (models.Resample, error) {
	switch r := v.(type) {
	case nil:
		return models.DefaultResample, nil
	case models.Resample:
		return r, nil
	case string:
		return models.ParseResample(r)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
