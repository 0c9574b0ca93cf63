package models

// ModuleRequirement is the static threshold set gating one module.
type ModuleRequirement struct {
	MinBalance          float64     `yaml:"minBalance"`
	MinLockedBalance    float64     `yaml:"minLockedBalance"`
	RequiredLoyaltyTier LoyaltyTier `yaml:"requiredLoyaltyTier"`
}

// ModuleRequirementsFile is the on-disk layout of the module table.
type ModuleRequirementsFile struct {
	Modules map[string]ModuleRequirement `yaml:"modules"`
}

// IncomeLevelRequirement gates an explicit upgrade to Level.
type IncomeLevelRequirement struct {
	Level              int     `yaml:"level"`
	MinIncome          float64 `yaml:"minIncome"`
	MinReferrals       int     `yaml:"minReferrals"`
	ActivityWindowDays int     `yaml:"activityWindowDays"`
	MinActiveMembers   int     `yaml:"minActiveMembers"`
	RequiresActiveLock bool    `yaml:"requiresActiveLock"`
}

// ActivityLevelRequirement drives the progress view for Level.
type ActivityLevelRequirement struct {
	Level            int `yaml:"level"`
	TransactionCount int `yaml:"transactionCount"`
	ActivityDays     int `yaml:"activityDays"`
	ReferralCount    int `yaml:"referralCount"`
}

// LevelRequirementsFile is the on-disk layout of both progression tracks.
type LevelRequirementsFile struct {
	Upgrade  []IncomeLevelRequirement   `yaml:"upgrade"`
	Activity []ActivityLevelRequirement `yaml:"activity"`
}
