// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultIoUThreshold is the overlap above which a lower-confidence box is suppressed.
const DefaultIoUThreshold float32 = 0.4

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// Candidates with a confidence at or below this value are ignored.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// Overlap threshold for suppression.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// If true, suppress only within the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// Upper bound on kept detections, 0 for no limit.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`
}

// DefaultNMSConfig returns joint (class-agnostic) suppression at DefaultIoUThreshold.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// Validate checks the configuration for out-of-range values.
//
// Returns:
//   - error: An error describing the first invalid field.
func (c NMSConfig) Validate() error {
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be within [0, 1], got %f", c.IoUThreshold)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold >= 1 {
		return fmt.Errorf("score_threshold must be within [0, 1), got %f", c.ScoreThreshold)
	}
	if c.MaxDetections < 0 {
		return fmt.Errorf("max_detections must not be negative, got %d", c.MaxDetections)
	}
	return nil
}

// Suppress performs greedy Non-Maximum Suppression.
//
// Candidates are visited in descending confidence order, ties broken by the
// lower original index. Each visited candidate that has not been suppressed
// is kept, and every remaining candidate whose IoU with it exceeds
// IoUThreshold is suppressed. With ClassAware set, only candidates sharing the
// kept candidate's class are considered for suppression.
//
// Arguments:
//   - candidates: Decoded candidates in detection order. Not modified.
//   - config: NMS configuration.
//
// Returns:
//   - []int: Indices into candidates of the kept detections, ascending.
func Suppress(candidates []Candidate, config NMSConfig) []int {
	order := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.Confidence > config.ScoreThreshold {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return []int{}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Confidence > candidates[order[j]].Confidence
	})

	kept := make([]int, 0, len(order))
	used := make([]bool, len(order))

	for i := 0; i < len(order); i++ {
		if used[i] {
			continue
		}
		if config.MaxDetections > 0 && len(kept) == config.MaxDetections {
			break
		}

		anchor := candidates[order[i]]
		kept = append(kept, order[i])
		used[i] = true

		for j := i + 1; j < len(order); j++ {
			if used[j] {
				continue
			}

			other := candidates[order[j]]
			if config.ClassAware && anchor.ClassID != other.ClassID {
				continue
			}

			if images.CalculateIoU(anchor.Box, other.Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	sort.Ints(kept)
	return kept
}

// Apply runs Suppress and returns the surviving candidates in their original
// detection order.
//
// Arguments:
//   - candidates: Decoded candidates in detection order.
//   - config: NMS configuration.
//
// Returns:
//   - []Candidate: The suppressed set. Empty, never nil.
func Apply(candidates []Candidate, config NMSConfig) []Candidate {
	indices := Suppress(candidates, config)

	out := make([]Candidate, 0, len(indices))
	for _, idx := range indices {
		out = append(out, candidates[idx])
	}
	return out
}
