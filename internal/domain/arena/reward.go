package arena

import "math"

// TrainingRewardRatio is the share of claimed XP granted when every claimed
// challenge was already completed.
const TrainingRewardRatio = 0.5

// Reward is the anti-farming-adjusted outcome actually credited.
type Reward struct {
	XP    uint64
	Score uint64
	// NewIDs are the claimed challenges the player had not completed before.
	NewIDs   []string
	Training bool
}

// ComputeReward applies the anti-farming rule:
//
//   - nothing claimed: no XP, no score
//   - some claimed ids are new: XP scaled by |new|/|claimed|, score |new|
//   - every claimed id is known: training XP (half the claim), no score
//
// Replaying an identical submission lands in the training branch, so each
// challenge grants full credit at most once per player.
func ComputeReward(known IDSet, claimed IDSet, xpClaim uint64) Reward {
	if claimed.Len() == 0 {
		return Reward{}
	}

	newIDs := claimed.Minus(known)
	if len(newIDs) > 0 {
		ratio := float64(len(newIDs)) / float64(claimed.Len())
		return Reward{
			XP:     roundXP(float64(xpClaim) * ratio),
			Score:  uint64(len(newIDs)),
			NewIDs: newIDs,
		}
	}

	return Reward{
		XP:       roundXP(float64(xpClaim) * TrainingRewardRatio),
		Training: true,
	}
}

func roundXP(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(math.Round(v))
}
