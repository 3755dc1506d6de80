// Package scorer rates merged leads by the contact evidence they carry.
package scorer

import "github.com/sells-group/leadgen-cli/internal/config"

// DefaultScoringConfig returns the standard evidence weights. Weights
// loaded from config are checked by config.ScoringConfig.Validate.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Website:       0.3,
		BusinessEmail: 0.4,
		AnyEmail:      0.2,
		Phone:         0.2,
		Social:        0.1,
		MultiSource:   0.1,
	}
}
