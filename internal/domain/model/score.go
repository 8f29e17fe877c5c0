package model

import (
	"errors"
	"fmt"
	"strings"
)

// Score bounds accepted from the external engine. A document outside these is
// a validation failure, not a partial success.
const (
	MinTotalScore = 0
	MaxTotalScore = 100
)

// ScoreItem is one criterion entry in the engine's score document.
type ScoreItem struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Score     int    `json:"score"`
	Positives string `json:"positives"`
	Negatives string `json:"negatives"`
}

// ScoreDocument is the structured output of the external analysis engine.
type ScoreDocument struct {
	TotalScore     int         `json:"total_score"`
	Items          []ScoreItem `json:"items"`
	OverallComment string      `json:"overall_comment"`
}

// Validate checks the document against the rubric contract: total score in
// range, exactly expectedItems entries, and every entry fully populated.
func (d *ScoreDocument) Validate(expectedItems int) error {
	if d.TotalScore < MinTotalScore || d.TotalScore > MaxTotalScore {
		return fmt.Errorf("total_score %d out of range [%d, %d]", d.TotalScore, MinTotalScore, MaxTotalScore)
	}
	if expectedItems > 0 && len(d.Items) != expectedItems {
		return fmt.Errorf("expected %d rubric items, got %d", expectedItems, len(d.Items))
	}
	if len(d.Items) == 0 {
		return errors.New("score document has no rubric items")
	}
	seen := make(map[string]struct{}, len(d.Items))
	for i := range d.Items {
		item := &d.Items[i]
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("item %d: id is required", i)
		}
		if strings.TrimSpace(item.Label) == "" {
			return fmt.Errorf("item %q: label is required", item.ID)
		}
		if item.Score < MinTotalScore || item.Score > MaxTotalScore {
			return fmt.Errorf("item %q: score %d out of range", item.ID, item.Score)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("item %q: duplicate criterion id", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
