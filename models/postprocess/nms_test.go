package postprocess

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
)

func cand(class int, conf float32, x, y, w, h float32) Candidate {
	return Candidate{ClassID: class, Confidence: conf, Box: images.Box{X: x, Y: y, Width: w, Height: h}}
}

func TestSuppress(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		config     NMSConfig
		expected   []int
	}{
		{
			name:       "empty input",
			candidates: nil,
			config:     DefaultNMSConfig(),
			expected:   []int{},
		},
		{
			name: "same class overlapping keeps the higher confidence",
			candidates: []Candidate{
				cand(0, 0.9, 0, 0, 100, 100),
				cand(0, 0.6, 0, 0, 100, 70), // IoU 0.7
			},
			config:   DefaultNMSConfig(),
			expected: []int{0},
		},
		{
			name: "higher confidence later in order still wins",
			candidates: []Candidate{
				cand(0, 0.6, 0, 0, 100, 70),
				cand(0, 0.9, 0, 0, 100, 100),
			},
			config:   DefaultNMSConfig(),
			expected: []int{1},
		},
		{
			name: "different classes are suppressed jointly by default",
			candidates: []Candidate{
				cand(0, 0.8, 0, 0, 100, 100),
				cand(1, 0.7, 0, 0, 100, 90), // IoU 0.9
			},
			config:   DefaultNMSConfig(),
			expected: []int{0},
		},
		{
			name: "different classes both survive when class aware",
			candidates: []Candidate{
				cand(0, 0.8, 0, 0, 100, 100),
				cand(1, 0.7, 0, 0, 100, 90),
			},
			config:   NMSConfig{IoUThreshold: 0.4, ClassAware: true},
			expected: []int{0, 1},
		},
		{
			name: "overlap exactly at threshold is kept",
			candidates: []Candidate{
				cand(0, 0.9, 0, 0, 100, 100),
				cand(0, 0.8, 0, 0, 100, 40), // IoU 0.4
			},
			config:   DefaultNMSConfig(),
			expected: []int{0, 1},
		},
		{
			name: "equal confidence prefers lower index",
			candidates: []Candidate{
				cand(2, 0.7, 10, 10, 50, 50),
				cand(2, 0.7, 10, 10, 50, 50),
			},
			config:   DefaultNMSConfig(),
			expected: []int{0},
		},
		{
			name: "output is ordered by detection index not confidence",
			candidates: []Candidate{
				cand(0, 0.55, 0, 0, 10, 10),
				cand(0, 0.95, 100, 100, 10, 10),
				cand(0, 0.75, 200, 200, 10, 10),
			},
			config:   DefaultNMSConfig(),
			expected: []int{0, 1, 2},
		},
		{
			name: "suppressed box does not suppress others",
			candidates: []Candidate{
				cand(0, 0.9, 0, 0, 100, 100),
				cand(0, 0.8, 50, 0, 100, 100),  // IoU with 0: 0.333
				cand(0, 0.7, 100, 0, 100, 100), // IoU with 0: 0, with 1: 0.333
			},
			config:   NMSConfig{IoUThreshold: 0.3},
			expected: []int{0, 2},
		},
		{
			name: "score threshold ignores weak candidates",
			candidates: []Candidate{
				cand(0, 0.3, 0, 0, 10, 10),
				cand(0, 0.6, 100, 100, 10, 10),
			},
			config:   NMSConfig{IoUThreshold: 0.4, ScoreThreshold: 0.5},
			expected: []int{1},
		},
		{
			name: "max detections keeps the most confident",
			candidates: []Candidate{
				cand(0, 0.6, 0, 0, 10, 10),
				cand(1, 0.9, 100, 100, 10, 10),
				cand(2, 0.8, 200, 200, 10, 10),
			},
			config:   NMSConfig{IoUThreshold: 0.4, MaxDetections: 2},
			expected: []int{1, 2},
		},
		{
			name: "degenerate boxes never suppress",
			candidates: []Candidate{
				cand(0, 0.9, 0, 0, 0, 0),
				cand(0, 0.8, 0, 0, 0, 0),
			},
			config:   DefaultNMSConfig(),
			expected: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Suppress(tt.candidates, tt.config))
		})
	}
}

func TestApply_KeepsCandidatesInOrder(t *testing.T) {
	candidates := []Candidate{
		cand(0, 0.6, 0, 0, 100, 70),
		cand(3, 0.7, 300, 300, 20, 20),
		cand(0, 0.9, 0, 0, 100, 100),
	}

	got := Apply(candidates, DefaultNMSConfig())
	want := []Candidate{candidates[1], candidates[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}

	assert.NotNil(t, Apply(nil, DefaultNMSConfig()))
	assert.Empty(t, Apply(nil, DefaultNMSConfig()))
}

func TestSuppress_Properties(t *testing.T) {
	candidates := make([]Candidate, 0, 64)
	for i := 0; i < 64; i++ {
		x := float32((i * 37) % 200)
		y := float32((i * 53) % 150)
		conf := 0.5 + float32((i*7)%50)/100
		candidates = append(candidates, cand(i%3, conf, x, y, 60, 40))
	}

	for _, classAware := range []bool{false, true} {
		config := NMSConfig{IoUThreshold: 0.4, ClassAware: classAware}
		kept := Apply(candidates, config)
		require.NotEmpty(t, kept)

		for i := range kept {
			for j := i + 1; j < len(kept); j++ {
				if classAware && kept[i].ClassID != kept[j].ClassID {
					continue
				}
				assert.LessOrEqual(t, images.CalculateIoU(kept[i].Box, kept[j].Box), config.IoUThreshold)
			}
		}

		again := Apply(kept, config)
		if diff := cmp.Diff(kept, again); diff != "" {
			t.Errorf("suppression is not idempotent (classAware=%v):\n%s", classAware, diff)
		}
	}
}

func TestNMSConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultNMSConfig().Validate())
	assert.Error(t, NMSConfig{IoUThreshold: 1.5}.Validate())
	assert.Error(t, NMSConfig{IoUThreshold: 0.4, ScoreThreshold: -0.1}.Validate())
	assert.Error(t, NMSConfig{IoUThreshold: 0.4, MaxDetections: -1}.Validate())
}
