package reward

import (
	"context"
	"math"

	"github.com/venloapp/questlock/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Curve parameterizes the level-up threshold function.
type Curve struct {
	Base   int     // XP needed for level 1 → 2
	Growth float64 // must be > 1 so the carry-over loop terminates
}

// DefaultCurve matches the app's tuning defaults.
var DefaultCurve = Curve{Base: 100, Growth: 1.5}

// Threshold returns the XP needed to clear the given level:
// floor(base × growth^(level−1)).
func (c Curve) Threshold(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(float64(c.Base) * math.Pow(c.Growth, float64(level-1))))
}

// Progress is a fully resolved (level, xp, threshold) triple. Partial-level
// intermediate states are never exposed or persisted.
type Progress struct {
	Level     int `json:"level"`
	CurrentXP int `json:"current_xp"`
	XPToNext  int `json:"xp_to_next"`
}

// AddXP applies an XP gain with level carry-over and returns the resolved
// progress. Pure: no side effects, safe to call speculatively.
func (c Curve) AddXP(level, currentXP, amount int) Progress {
	if level < 1 {
		level = 1
	}
	if currentXP < 0 {
		currentXP = 0
	}
	if amount < 0 {
		amount = 0
	}
	xp := currentXP + amount
	threshold := c.Threshold(level)
	for xp >= threshold {
		xp -= threshold
		level++
		threshold = c.Threshold(level)
	}
	return Progress{Level: level, CurrentXP: xp, XPToNext: threshold}
}

// Ledger is the sole writer of character progression. XP is granted through
// Grant only, after a completed outcome has been acknowledged.
type Ledger struct {
	db     *gorm.DB
	curve  Curve
	logger *zap.Logger
}

// NewLedger creates a Ledger with the given curve.
func NewLedger(db *gorm.DB, curve Curve, logger *zap.Logger) *Ledger {
	if curve.Growth <= 1 {
		curve = DefaultCurve
	}
	return &Ledger{db: db, curve: curve, logger: logger}
}

// Curve returns the ledger's threshold curve.
func (l *Ledger) Curve() Curve { return l.curve }

// Grant adds XP to the character, resolves any level-ups, and commits the
// final triple in one update. The passed character is updated in place to
// the committed values.
func (l *Ledger) Grant(ctx context.Context, char *model.Character, amount int) (Progress, error) {
	p := l.curve.AddXP(char.Level, char.CurrentXP, amount)
	err := l.db.WithContext(ctx).Model(&model.Character{}).Where("id = ?", char.ID).
		Updates(map[string]interface{}{
			"level":      p.Level,
			"current_xp": p.CurrentXP,
			"xp_to_next": p.XPToNext,
		}).Error
	if err != nil {
		return Progress{}, err
	}
	leveled := p.Level > char.Level
	char.Level = p.Level
	char.CurrentXP = p.CurrentXP
	char.XPToNext = p.XPToNext
	if leveled {
		l.logger.Info("level up",
			zap.Int64("char_id", char.ID),
			zap.Int("level", p.Level))
	}
	return p, nil
}
