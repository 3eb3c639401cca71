package guard

import (
	"crypto/sha256"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
)

// classifier training parameters. SGD on hinge loss converges quickly on the
// small, hand-labeled sets this bot deals with; values picked to be stable
// rather than optimal.
const (
	ngramMin     = 1
	ngramMax     = 3
	trainEpochs  = 200
	learningRate = 0.5
	l2Lambda     = 1e-4
)

// Model is the trained artifact: a linear margin model over character n-gram
// frequencies. LabelsHash ties the model to the label set it was trained from,
// a stale persisted model is detected by comparing hashes.
type Model struct {
	Weights    map[string]float64
	Bias       float64
	LabelsHash string
}

// Classifier scores texts with a badness percentage in [0,100]. It is trained
// from labeled bad/good examples and is thread-safe: the model is replaced as a
// whole on retrain, readers never observe a half-trained state.
type Classifier struct {
	model *Model
	lock  sync.RWMutex
}

// NewClassifier returns an untrained classifier. Until trained, Score always
// reports 0 and IsBad always reports false.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Train fits a new model from the labeled examples and atomically replaces the
// current one. With fewer than 2 examples in either class the classifier
// reverts to the untrained state; this is not an error, just not enough data.
func (c *Classifier) Train(bad, good []string) {
	if len(bad) < 2 || len(good) < 2 {
		log.Printf("[DEBUG] not enough labeled examples to train, bad:%d, good:%d", len(bad), len(good))
		c.lock.Lock()
		c.model = nil
		c.lock.Unlock()
		return
	}

	m := fit(bad, good)
	m.LabelsHash = LabelsHash(bad, good)

	c.lock.Lock()
	c.model = m
	c.lock.Unlock()
	log.Printf("[INFO] classifier trained, bad:%d, good:%d, features:%d", len(bad), len(good), len(m.Weights))
}

// Trained reports if a model is loaded.
func (c *Classifier) Trained() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.model != nil
}

// Model returns the current model, nil if untrained.
func (c *Classifier) Model() *Model {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.model
}

// SetModel installs a previously persisted model.
func (c *Classifier) SetModel(m *Model) {
	c.lock.Lock()
	c.model = m
	c.lock.Unlock()
}

// Score returns the badness percentage of a text, 0 for the untrained state.
// Any panic during scoring is swallowed and reported as 0, the classifier
// abstains rather than taking the pipeline down.
func (c *Classifier) Score(text string) (res float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] classifier score recovered: %v", r)
			res = 0
		}
	}()

	c.lock.RLock()
	m := c.model
	c.lock.RUnlock()
	if m == nil {
		return 0
	}

	margin := m.Bias
	for gram, freq := range ngrams(text) {
		margin += m.Weights[gram] * freq
	}
	// logistic calibration of the margin to a [0,100] percentage
	return 100 / (1 + math.Exp(-margin))
}

// IsBad reports if the text scores above the threshold.
func (c *Classifier) IsBad(text string, threshold float64) bool {
	return c.Score(text) > threshold
}

// LabelsHash returns a stable hash of the label set, order-insensitive.
func LabelsHash(bad, good []string) string {
	h := sha256.New()
	for _, set := range [][]string{bad, good} {
		sorted := make([]string, len(set))
		copy(sorted, set)
		sort.Strings(sorted)
		for _, s := range sorted {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// fit trains a linear model with hinge-loss SGD. Deterministic: examples are
// visited in a fixed order every epoch.
func fit(bad, good []string) *Model {
	type example struct {
		feats map[string]float64
		y     float64 // +1 bad, -1 good
	}
	examples := make([]example, 0, len(bad)+len(good))
	for _, s := range bad {
		examples = append(examples, example{feats: ngrams(s), y: 1})
	}
	for _, s := range good {
		examples = append(examples, example{feats: ngrams(s), y: -1})
	}

	weights := make(map[string]float64)
	bias := 0.0

	for epoch := 0; epoch < trainEpochs; epoch++ {
		for _, ex := range examples {
			margin := bias
			for gram, freq := range ex.feats {
				margin += weights[gram] * freq
			}
			if ex.y*margin < 1 { // inside the margin, push
				for gram, freq := range ex.feats {
					weights[gram] += learningRate * (ex.y*freq - l2Lambda*weights[gram])
				}
				bias += learningRate * ex.y
			}
		}
	}
	return &Model{Weights: weights, Bias: bias}
}

// ngrams extracts character n-grams of sizes 1..3, case-sensitive to keep
// mixed-script inputs apart, weighted by frequency normalized over the total
// gram count.
func ngrams(text string) map[string]float64 {
	runes := []rune(text)
	counts := make(map[string]float64)
	total := 0.0
	for size := ngramMin; size <= ngramMax; size++ {
		for i := 0; i+size <= len(runes); i++ {
			counts[string(runes[i:i+size])]++
			total++
		}
	}
	if total == 0 {
		return counts
	}
	for gram := range counts {
		counts[gram] /= total
	}
	return counts
}
