// Package learning converts user corrections into durable classification
// knowledge: learned patterns, auto-induced rules, and a trainable fallback
// classifier.
package learning

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/quillfin/quill/internal/model"
	"github.com/quillfin/quill/internal/suggest"
)

// FeatureDim is the fixed size of the hashed bag-of-words feature vector.
// Vocabulary indices wrap modulo this dimension, so collisions are accepted;
// changing it invalidates every saved model.
const FeatureDim = 100

// Example is one training observation for the classifier.
type Example struct {
	Text     string
	Category string
	Weight   float64
}

// Prediction is a confidence-gated classifier output.
type Prediction struct {
	Category   string
	Confidence float64
}

// Classifier is a softmax model over hashed bag-of-words features. The
// output layer has one row per known category and is rebuilt from scratch
// each training cycle, so a grown category set always gets a matching layer.
type Classifier struct {
	vocab      map[string]int
	catIndex   map[string]int
	categories []string
	weights    [][]float64
	bias       []float64
	threshold  float64
}

// NewClassifier creates an untrained classifier. Predictions below the
// threshold probability return nil so callers fall back to rules.
func NewClassifier(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Classifier{
		vocab:     make(map[string]int),
		catIndex:  make(map[string]int),
		threshold: threshold,
	}
}

// vector builds the normalized hashed bag-of-words vector for a text. When
// grow is true unseen tokens are added to the vocabulary.
func (c *Classifier) vector(text string, grow bool) []float64 {
	vec := make([]float64, FeatureDim)
	tokens := suggest.SignificantTokens(text)

	var total float64
	for _, token := range tokens {
		idx, ok := c.vocab[token]
		if !ok {
			if !grow {
				continue
			}
			idx = len(c.vocab)
			c.vocab[token] = idx
		}
		vec[idx%FeatureDim]++
		total++
	}

	if total > 0 {
		for i := range vec {
			vec[i] /= total
		}
	}
	return vec
}

// ensureCategory registers a category, extending the output layer.
func (c *Classifier) ensureCategory(category string) int {
	if idx, ok := c.catIndex[category]; ok {
		return idx
	}
	idx := len(c.categories)
	c.catIndex[category] = idx
	c.categories = append(c.categories, category)
	c.weights = append(c.weights, make([]float64, FeatureDim))
	c.bias = append(c.bias, 0)
	return idx
}

// Train fits the model to the examples with batch-free gradient descent.
// Training is deterministic: fixed iteration order, no random
// initialization.
func (c *Classifier) Train(examples []Example, epochs int, learningRate float64) error {
	if len(examples) == 0 {
		return fmt.Errorf("no training examples")
	}
	if epochs <= 0 {
		epochs = 50
	}
	if learningRate <= 0 {
		learningRate = 0.5
	}

	for _, ex := range examples {
		c.ensureCategory(ex.Category)
	}

	type sample struct {
		vec    []float64
		target int
		weight float64
	}
	samples := make([]sample, 0, len(examples))
	for _, ex := range examples {
		weight := ex.Weight
		if weight <= 0 {
			weight = 1
		}
		samples = append(samples, sample{
			vec:    c.vector(ex.Text, true),
			target: c.catIndex[ex.Category],
			weight: weight,
		})
	}

	for epoch := 0; epoch < epochs; epoch++ {
		for _, s := range samples {
			probs := c.forward(s.vec)
			for k := range c.categories {
				grad := probs[k]
				if k == s.target {
					grad -= 1
				}
				grad *= learningRate * s.weight
				row := c.weights[k]
				for i, x := range s.vec {
					if x != 0 {
						row[i] -= grad * x
					}
				}
				c.bias[k] -= grad
			}
		}
	}

	return nil
}

// forward computes softmax probabilities for a feature vector.
func (c *Classifier) forward(vec []float64) []float64 {
	logits := make([]float64, len(c.categories))
	maxLogit := math.Inf(-1)
	for k, row := range c.weights {
		var sum float64
		for i, x := range vec {
			if x != 0 {
				sum += row[i] * x
			}
		}
		logits[k] = sum + c.bias[k]
		if logits[k] > maxLogit {
			maxLogit = logits[k]
		}
	}

	var total float64
	for k, l := range logits {
		logits[k] = math.Exp(l - maxLogit)
		total += logits[k]
	}
	for k := range logits {
		logits[k] /= total
	}
	return logits
}

// Predict returns the argmax category when its probability clears the
// confidence threshold, and nil otherwise.
func (c *Classifier) Predict(text string) *Prediction {
	if len(c.categories) == 0 {
		return nil
	}

	vec := c.vector(text, false)
	var nonZero bool
	for _, x := range vec {
		if x != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		return nil
	}

	probs := c.forward(vec)
	best := 0
	for k := range probs {
		if probs[k] > probs[best] {
			best = k
		}
	}

	if probs[best] <= c.threshold {
		return nil
	}
	return &Prediction{
		Category:   c.categories[best],
		Confidence: model.ClampConfidence(probs[best]),
	}
}

// Categories returns the known category list in output-layer order.
func (c *Classifier) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// modelSnapshot is the JSON wire form of a trained classifier.
type modelSnapshot struct {
	Vocab      map[string]int `json:"vocab"`
	Categories []string       `json:"categories"`
	Weights    [][]float64    `json:"weights"`
	Bias       []float64      `json:"bias"`
	Threshold  float64        `json:"threshold"`
	FeatureDim int            `json:"feature_dim"`
}

// Snapshot serializes the classifier so that restoring it produces an
// equivalent predictor.
func (c *Classifier) Snapshot() ([]byte, error) {
	return json.Marshal(modelSnapshot{
		Vocab:      c.vocab,
		Categories: c.categories,
		Weights:    c.weights,
		Bias:       c.bias,
		Threshold:  c.threshold,
		FeatureDim: FeatureDim,
	})
}

// RestoreClassifier rebuilds a classifier from a Snapshot payload.
func RestoreClassifier(payload []byte) (*Classifier, error) {
	var snap modelSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode classifier model: %w", err)
	}
	if snap.FeatureDim != FeatureDim {
		return nil, fmt.Errorf("classifier model has feature dimension %d, expected %d", snap.FeatureDim, FeatureDim)
	}
	if len(snap.Weights) != len(snap.Categories) || len(snap.Bias) != len(snap.Categories) {
		return nil, fmt.Errorf("classifier model weight layout does not match its category list")
	}

	c := NewClassifier(snap.Threshold)
	c.categories = snap.Categories
	c.weights = snap.Weights
	c.bias = snap.Bias
	if snap.Vocab != nil {
		c.vocab = snap.Vocab
	}
	for i, cat := range snap.Categories {
		c.catIndex[cat] = i
	}
	return c, nil
}
