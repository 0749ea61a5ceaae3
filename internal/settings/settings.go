package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultModel is the model offered before the catalog loads and kept when it fails.
const DefaultModel = "meta-llama/llama-3.2-3b-instruct:free"

// Param names one tunable model parameter.
type Param string

const (
	Temperature      Param = "temperature"
	TopP             Param = "top_p"
	TopK             Param = "top_k"
	FrequencyPenalty Param = "frequency_penalty"
)

// Range declares the bounds and step of a parameter.
type Range struct {
	Min     float64
	Max     float64
	Step    float64
	Default float64
	Label   string
}

var ranges = map[Param]Range{
	Temperature:      {Min: 0, Max: 1, Step: 0.1, Default: 0.7, Label: "Temp"},
	TopP:             {Min: 0, Max: 1, Step: 0.1, Default: 1.0, Label: "Top P"},
	TopK:             {Min: 0, Max: 100, Step: 1, Default: 40, Label: "Top K"},
	FrequencyPenalty: {Min: 0, Max: 2, Step: 0.1, Default: 0, Label: "Freq"},
}

// Params lists the parameters in display order.
func Params() []Param {
	return []Param{Temperature, TopP, TopK, FrequencyPenalty}
}

// RangeOf returns the declared range of p.
func RangeOf(p Param) (Range, bool) {
	r, ok := ranges[p]
	return r, ok
}

// ParseParam accepts the canonical name or a short alias (temp, topp, topk, freq).
func ParseParam(s string) (Param, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature", "temp", "t":
		return Temperature, nil
	case "top_p", "topp", "top-p", "p":
		return TopP, nil
	case "top_k", "topk", "top-k", "k":
		return TopK, nil
	case "frequency_penalty", "freq", "frequency", "fp":
		return FrequencyPenalty, nil
	default:
		return "", fmt.Errorf("unknown parameter %q", s)
	}
}

// Values is a point-in-time copy of the active settings.
type Values struct {
	Model            string
	Temperature      float64
	TopP             float64
	TopK             int
	FrequencyPenalty float64
}

// Get returns the numeric value of p.
func (v Values) Get(p Param) float64 {
	switch p {
	case Temperature:
		return v.Temperature
	case TopP:
		return v.TopP
	case TopK:
		return float64(v.TopK)
	case FrequencyPenalty:
		return v.FrequencyPenalty
	}
	return 0
}

// Store holds the session-wide model settings. It is passed to every
// consumer explicitly; there is no package-level instance.
type Store struct {
	mu     sync.RWMutex
	values Values
}

// New returns a store with the declared defaults and the given model.
func New(model string) *Store {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Store{values: Values{
		Model:            model,
		Temperature:      ranges[Temperature].Default,
		TopP:             ranges[TopP].Default,
		TopK:             int(ranges[TopK].Default),
		FrequencyPenalty: ranges[FrequencyPenalty].Default,
	}}
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// Model returns the active model id.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Model
}

// SetModel switches the active model.
func (s *Store) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	s.mu.Lock()
	s.values.Model = model
	s.mu.Unlock()
	return nil
}

// Set assigns p, clamped to its range and rounded, and returns the stored value.
func (s *Store) Set(p Param, value float64) (float64, error) {
	r, ok := ranges[p]
	if !ok {
		return 0, fmt.Errorf("unknown parameter %q", p)
	}
	if math.IsNaN(value) {
		return 0, fmt.Errorf("%s: value is not a number", p)
	}
	v := clamp(round2(value), r.Min, r.Max)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch p {
	case Temperature:
		s.values.Temperature = v
	case TopP:
		s.values.TopP = v
	case TopK:
		v = math.Round(v)
		s.values.TopK = int(v)
	case FrequencyPenalty:
		s.values.FrequencyPenalty = v
	}
	return v, nil
}

// Increase steps p up by its declared step.
func (s *Store) Increase(p Param) (float64, error) {
	return s.step(p, 1)
}

// Decrease steps p down by its declared step.
func (s *Store) Decrease(p Param) (float64, error) {
	return s.step(p, -1)
}

func (s *Store) step(p Param, dir float64) (float64, error) {
	r, ok := ranges[p]
	if !ok {
		return 0, fmt.Errorf("unknown parameter %q", p)
	}
	current := s.Snapshot().Get(p)
	return s.Set(p, current+dir*r.Step)
}

// Format renders the value of p the way the steppers show it.
func Format(p Param, v float64) string {
	if p == TopK {
		return fmt.Sprintf("%d", int(v))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
