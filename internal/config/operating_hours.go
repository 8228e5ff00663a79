package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iliyamo/slot-booking/internal/model"
)

// LoadOperatingHours reads the JSON operating-hours file consumed by the
// slot generator.  An empty path yields model.DefaultOperatingHours.
func LoadOperatingHours(path string) (model.OperatingHoursConfig, error) {
	cfg := model.DefaultOperatingHours()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return model.OperatingHoursConfig{}, fmt.Errorf("open operating hours: %w", err)
		}
		defer f.Close()
		cfg = model.OperatingHoursConfig{}
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return model.OperatingHoursConfig{}, fmt.Errorf("decode operating hours %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return model.OperatingHoursConfig{}, err
	}
	return cfg, nil
}
