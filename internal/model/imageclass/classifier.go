// Package imageclass is the image classification model family: a single
// vision graph producing class logits, with labels from config.json.
package imageclass

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/internal/hub"
	"inferd/internal/model"
	"inferd/internal/session"
	"inferd/pkg/types"
)

const (
	DefaultMinScore = 0.9
	DefaultTopK     = 5

	graphStem = "model"
)

// fetchPatterns select weights, configs and vocab-style text files.
var fetchPatterns = []string{"*.bin", "*.json", "*.txt"}

// Classifier implements model.Impl for image classification.
type Classifier struct {
	minScore float64
	topK     int

	labels []string
	pre    preprocessor
	sess   session.Session
}

var (
	_ model.Impl           = (*Classifier)(nil)
	_ model.Configurer     = (*Classifier)(nil)
	_ model.FilterProvider = (*Classifier)(nil)
)

// NewClassifier builds the family hooks. params may carry minScore and topK.
func NewClassifier(params model.Params) (*Classifier, error) {
	c := &Classifier{minScore: DefaultMinScore, topK: DefaultTopK}
	if err := c.Configure(params); err != nil {
		return nil, err
	}
	return c, nil
}

// New returns an image classification model for name.
func New(name string, deps model.Deps, opts model.Options, params model.Params) (*model.Model, error) {
	c, err := NewClassifier(params)
	if err != nil {
		return nil, err
	}
	return model.New(name, types.FamilyImageClassification, c, deps, opts)
}

// MinScore returns the current label threshold.
func (c *Classifier) MinScore() float64 { return c.minScore }

// FetchFilter implements model.FilterProvider.
func (c *Classifier) FetchFilter() hub.Filter {
	return hub.Filter{Include: append([]string(nil), fetchPatterns...)}
}

// Configure updates minScore and topK; other keys are ignored. Nothing is
// applied unless every key is valid.
func (c *Classifier) Configure(p model.Params) error {
	minScore, topK := c.minScore, c.topK
	if v, ok, err := p.Float("minScore"); err != nil {
		return err
	} else if ok {
		if v < 0 || v > 1 {
			return model.ErrInvalidParam("minScore", "must be within [0, 1], got %v", v)
		}
		minScore = v
	}
	if v, ok, err := p.Int("topK"); err != nil {
		return err
	} else if ok {
		if v < 1 {
			return model.ErrInvalidParam("topK", "must be positive, got %d", v)
		}
		topK = v
	}
	c.minScore, c.topK = minScore, topK
	return nil
}

// Load reads the label map and preprocessing settings and opens the graph.
// The snapshot filter does not cover graph files, so the graph is fetched on
// its own when missing.
func (c *Classifier) Load(ctx context.Context, m *model.Model) error {
	dir := m.CacheDir()
	labels, err := loadLabels(filepath.Join(dir, "config.json"))
	if err != nil {
		return err
	}
	pre, err := loadPreprocessor(filepath.Join(dir, "preprocessor_config.json"))
	if err != nil {
		return err
	}

	artifact := graphStem + m.Runtime().Ext()
	portable := graphStem + ".onnx"
	if !fsutil.IsFile(filepath.Join(dir, artifact)) && !fsutil.IsFile(filepath.Join(dir, portable)) {
		m.Logger().Info().Str("file", artifact).Msg("graph not in snapshot, fetching")
		if err := m.Fetch(ctx, hub.Filter{Include: []string{artifact, portable}}); err != nil {
			return err
		}
	}
	sess, err := m.BuildSession(artifact)
	if err != nil {
		return err
	}
	if len(sess.InputNames()) != 1 || len(sess.OutputNames()) < 1 {
		return session.ErrSession(artifact, fmt.Errorf("expected one input and at least one output, got %d/%d",
			len(sess.InputNames()), len(sess.OutputNames())))
	}
	c.labels, c.pre, c.sess = labels, pre, sess
	return nil
}

// Predict returns the labels of the top-k classes scoring at least minScore.
// Labels carrying synonyms ("tabby, tabby cat") are split into separate tags.
func (c *Classifier) Predict(ctx context.Context, input []byte) (any, error) {
	if c.sess == nil {
		return nil, fmt.Errorf("classifier not loaded")
	}
	data, shape, err := c.pre.tensor(input)
	if err != nil {
		return nil, ErrBadInput(err)
	}
	outs, err := c.sess.Run(ctx, []session.Tensor{{Name: c.sess.InputNames()[0], Shape: shape, Data: data}})
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 || len(outs[0].Data) == 0 {
		return nil, fmt.Errorf("classifier produced no logits")
	}
	scores := softmax(outs[0].Data)
	tags := []string{}
	for _, i := range topK(scores, c.topK) {
		if float64(scores[i]) < c.minScore {
			continue
		}
		tags = append(tags, strings.Split(c.label(i), ", ")...)
	}
	return tags, nil
}

func (c *Classifier) label(i int) string {
	if i < len(c.labels) && c.labels[i] != "" {
		return c.labels[i]
	}
	return "LABEL_" + strconv.Itoa(i)
}

type modelConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

func loadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	last := -1
	ids := make(map[int]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		id, err := strconv.Atoi(k)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("parse %s: bad label id %q", path, k)
		}
		ids[id] = v
		if id > last {
			last = id
		}
	}
	labels := make([]string, last+1)
	for id, v := range ids {
		labels[id] = v
	}
	return labels, nil
}

func softmax(logits []float32) []float32 {
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxv))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// topK returns the indices of the k highest scores, best first.
func topK(scores []float32, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
