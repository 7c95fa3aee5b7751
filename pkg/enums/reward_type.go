package enums

// RewardType is what a referral pays out.
type RewardType string

const (
	RewardTypeCredits     RewardType = "credits"
	RewardTypePremiumDays RewardType = "premium_days"
)

var rewardTypes = values[RewardType]{RewardTypeCredits, RewardTypePremiumDays}

func (r RewardType) IsValid() bool { return rewardTypes.has(r) }

func ParseRewardType(raw string) (RewardType, error) {
	return rewardTypes.parse("reward type", raw)
}
