package sdcp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidPrintOptions = errors.New("invalid print options")

// LocalRoot is the on-device storage the bridge lists and uploads into.
const LocalRoot = "/local/"

// PrintOptions is the normalized payload shared by the print and
// print_cloud cloud commands.
type PrintOptions struct {
	Filename     string
	PlatformType int
	Timelapse    int
	Calibration  int
}

// ParsePrintOptions normalizes cloud command fields. The plate selector is
// read from PlateSide, then PrintPlatformType; "A" (any case) selects 0, any
// other string 1, numbers are used as is. Timelapse comes from Tlp_Switch or
// Timelapse, calibration from Calibration_switch or BedLeveling.
func ParsePrintOptions(fields map[string]any) (PrintOptions, error) {
	opts := PrintOptions{}
	if name, ok := fields["Filename"].(string); ok {
		opts.Filename = strings.TrimSpace(name)
	}

	platform, err := plateSelector(firstOf(fields, "PlateSide", "PrintPlatformType"))
	if err != nil {
		return PrintOptions{}, err
	}
	opts.PlatformType = platform

	if opts.Timelapse, err = flag(firstOf(fields, "Tlp_Switch", "Timelapse")); err != nil {
		return PrintOptions{}, fmt.Errorf("timelapse: %w", err)
	}

	if opts.Calibration, err = flag(firstOf(fields, "Calibration_switch", "BedLeveling")); err != nil {
		return PrintOptions{}, fmt.Errorf("calibration: %w", err)
	}

	return opts, nil
}

// Payload builds the start-print command data for the file at path.
func (o PrintOptions) Payload(path string) map[string]any {
	return map[string]any{
		"Filename":           path,
		"StartLayer":         0,
		"PrintPlatformType":  o.PlatformType,
		"Tlp_Switch":         o.Timelapse,
		"Calibration_switch": o.Calibration,
	}
}

func firstOf(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return v
		}
	}

	return nil
}

func plateSelector(v any) (int, error) {
	if s, ok := v.(string); ok {
		if strings.EqualFold(s, "A") {
			return 0, nil
		}
		return 1, nil
	}

	return ToInt(v)
}

func flag(v any) (int, error) {
	n, err := ToInt(v)
	if err != nil {
		return 0, err
	}
	if n != 0 {
		return 1, nil
	}

	return 0, nil
}

// ToInt coerces a decoded JSON value to an integer. A missing value is 0.
func ToInt(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPrintOptions, t)
		}
		return int(t), nil
	case int:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidPrintOptions, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value %v", ErrInvalidPrintOptions, v)
	}
}
