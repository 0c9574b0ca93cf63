package progression

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"coin-wallet-go/internal/models"

	"gopkg.in/yaml.v2"
)

//go:embed levels.yaml
var defaultLevels []byte

// Tracks holds both progression tables, each sorted by level.
type Tracks struct {
	Upgrade  []models.IncomeLevelRequirement
	Activity []models.ActivityLevelRequirement
}

// LoadTracks reads the level tables from path, or the embedded defaults
// when path is empty.
func LoadTracks(path string) (*Tracks, error) {
	raw := defaultLevels
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read level requirements %s: %w", path, err)
		}
	}
	return ParseTracks(raw)
}

func ParseTracks(raw []byte) (*Tracks, error) {
	var file models.LevelRequirementsFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse level requirements: %w", err)
	}

	tracks := &Tracks{Upgrade: file.Upgrade, Activity: file.Activity}
	sort.Slice(tracks.Upgrade, func(i, j int) bool { return tracks.Upgrade[i].Level < tracks.Upgrade[j].Level })
	sort.Slice(tracks.Activity, func(i, j int) bool { return tracks.Activity[i].Level < tracks.Activity[j].Level })

	if err := tracks.validate(); err != nil {
		return nil, err
	}
	return tracks, nil
}

// Levels must run 1..N without gaps and thresholds must not decrease.
func (t *Tracks) validate() error {
	if len(t.Upgrade) == 0 {
		return fmt.Errorf("upgrade track has no levels")
	}
	for i, req := range t.Upgrade {
		if req.Level != i+1 {
			return fmt.Errorf("upgrade track: expected level %d, got %d", i+1, req.Level)
		}
		if req.MinIncome < 0 || req.MinReferrals < 0 || req.MinActiveMembers < 0 || req.ActivityWindowDays < 0 {
			return fmt.Errorf("upgrade track level %d: thresholds cannot be negative", req.Level)
		}
		if i > 0 {
			prev := t.Upgrade[i-1]
			if req.MinIncome < prev.MinIncome || req.MinReferrals < prev.MinReferrals || req.MinActiveMembers < prev.MinActiveMembers {
				return fmt.Errorf("upgrade track level %d: thresholds lower than level %d", req.Level, prev.Level)
			}
		}
	}
	for i, req := range t.Activity {
		if req.Level != i+1 {
			return fmt.Errorf("activity track: expected level %d, got %d", i+1, req.Level)
		}
		if i > 0 {
			prev := t.Activity[i-1]
			if req.TransactionCount < prev.TransactionCount || req.ActivityDays < prev.ActivityDays || req.ReferralCount < prev.ReferralCount {
				return fmt.Errorf("activity track level %d: thresholds lower than level %d", req.Level, prev.Level)
			}
		}
	}
	return nil
}

// MaxLevel is the highest level reachable by upgrade.
func (t *Tracks) MaxLevel() int {
	return len(t.Upgrade)
}

func (t *Tracks) upgradeFor(level int) (models.IncomeLevelRequirement, bool) {
	if level < 1 || level > len(t.Upgrade) {
		return models.IncomeLevelRequirement{}, false
	}
	return t.Upgrade[level-1], true
}

func (t *Tracks) activityFor(level int) (models.ActivityLevelRequirement, bool) {
	if level < 1 || level > len(t.Activity) {
		return models.ActivityLevelRequirement{}, false
	}
	return t.Activity[level-1], true
}
