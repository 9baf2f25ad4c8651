package eventmodels

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AdmissionClassYAML parameterizes admission for one instrument class. The
// forex and crypto variants of the source system differed only in these
// constants, so a single controller is configured per class instead of
// near-duplicate implementations.
type AdmissionClassYAML struct {
	Symbols             []string `yaml:"symbols"`
	TargetDailyCount    int      `yaml:"target_daily_count"`
	BucketHourlyRate    float64  `yaml:"bucket_hourly_rate"`
	BucketBurst         float64  `yaml:"bucket_burst"`
	HighScore           float64  `yaml:"high_score"`
	FloorScore          float64  `yaml:"floor_score"`
	MidScore            float64  `yaml:"mid_score"`
	LogisticSlope       float64  `yaml:"logistic_slope"`
	MinExpectedValue    float64  `yaml:"min_expected_value"`
	MinRarityQuantile   float64  `yaml:"min_rarity_quantile"`
	AheadPaceThreshold  float64  `yaml:"ahead_pace_threshold"`
	BehindPaceThreshold float64  `yaml:"behind_pace_threshold"`
	TrickleProbability  float64  `yaml:"trickle_probability"`
	DupWindowMinutes    int      `yaml:"dup_window_minutes"`
	DupWindowShortSecs  int      `yaml:"dup_window_short_secs"`
	PipSize             float64  `yaml:"pip_size"`
	PipValuePerLot      float64  `yaml:"pip_value_per_lot"`
}

func (c *AdmissionClassYAML) DupWindow() time.Duration {
	if c.DupWindowMinutes <= 0 {
		return 15 * time.Minute
	}

	return time.Duration(c.DupWindowMinutes) * time.Minute
}

func (c *AdmissionClassYAML) DupWindowShort() time.Duration {
	if c.DupWindowShortSecs <= 0 {
		return 180 * time.Second
	}

	return time.Duration(c.DupWindowShortSecs) * time.Second
}

type AdmissionConfigYAML struct {
	Classes map[string]*AdmissionClassYAML `yaml:"classes"`
}

func ParseAdmissionConfig(data []byte) (*AdmissionConfigYAML, error) {
	var cfg AdmissionConfigYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ParseAdmissionConfig: failed to unmarshal: %w", err)
	}

	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("ParseAdmissionConfig: no instrument classes configured")
	}

	return &cfg, nil
}

// ClassFor resolves the instrument class of a symbol by prefix match against
// each class's symbol list.
func (cfg *AdmissionConfigYAML) ClassFor(symbol string) (string, *AdmissionClassYAML, error) {
	upper := strings.ToUpper(symbol)
	for name, class := range cfg.Classes {
		for _, s := range class.Symbols {
			if strings.HasPrefix(upper, strings.ToUpper(s)) {
				return name, class, nil
			}
		}
	}

	return "", nil, fmt.Errorf("AdmissionConfigYAML:ClassFor(): no class configured for symbol %v", symbol)
}
