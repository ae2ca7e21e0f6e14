// Package scenario reads the header fields of processed traffic scenario
// files without decoding their trajectories.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// InvalidHeading marks time steps whose heading was not observed.
const InvalidHeading = -10000

// ErrInvalidScenario is returned when a file is not a scenario record.
var ErrInvalidScenario = errors.New("invalid scenario")

// Header is the scenario-level summary of one file.
type Header struct {
	Path       string `json:"path" yaml:"path"`
	Name       string `json:"name" yaml:"name"`
	ScenarioID string `json:"scenario_id" yaml:"scenario_id"`
	Objects    int    `json:"objects" yaml:"objects"`
	Roads      int    `json:"roads" yaml:"roads"`
	SDCIndex   int    `json:"sdc_index" yaml:"sdc_index"`
	// SDC summarises the self-driving car's steps; zero when SDCIndex does
	// not name an object.
	SDC Steps `json:"sdc_steps" yaml:"sdc_steps"`
}

// Probe reads path and parses its header.
func Probe(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, fmt.Errorf("read scenario %s: %w", path, err)
	}
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	h.Path = path
	return h, nil
}

// ParseHeader extracts name, scenario_id, object and road counts and the
// self-driving car index from a scenario document.
func ParseHeader(data []byte) (Header, error) {
	if !gjson.ValidBytes(data) {
		return Header{}, fmt.Errorf("%w: malformed JSON", ErrInvalidScenario)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Header{}, fmt.Errorf("%w: top level is not an object", ErrInvalidScenario)
	}

	id := doc.Get("scenario_id")
	if !id.Exists() || id.String() == "" {
		return Header{}, fmt.Errorf("%w: missing scenario_id", ErrInvalidScenario)
	}

	h := Header{
		Name:       doc.Get("name").String(),
		ScenarioID: id.String(),
		Objects:    int(doc.Get("objects.#").Int()),
		Roads:      int(doc.Get("roads.#").Int()),
		SDCIndex:   -1,
	}
	if sdc := doc.Get("metadata.sdc_track_index"); sdc.Exists() {
		h.SDCIndex = int(sdc.Int())
	}
	if h.SDCIndex >= 0 {
		if obj := doc.Get(fmt.Sprintf("objects.%d", h.SDCIndex)); obj.Exists() {
			h.SDC = countSteps(obj)
		}
	}
	return h, nil
}

// Steps summarises the observed time steps of one object.
type Steps struct {
	Type           string `json:"type" yaml:"type"`
	Total          int    `json:"total" yaml:"total"`
	Valid          int    `json:"valid" yaml:"valid"`
	InvalidHeading int    `json:"invalid_heading" yaml:"invalid_heading"`
}

// ObjectSteps counts valid steps and unobserved headings for the object at
// index idx. The object's valid array defines the episode length.
func ObjectSteps(data []byte, idx int) (Steps, error) {
	obj := gjson.GetBytes(data, fmt.Sprintf("objects.%d", idx))
	if !obj.Exists() {
		return Steps{}, fmt.Errorf("%w: object %d not found", ErrInvalidScenario, idx)
	}
	return countSteps(obj), nil
}

func countSteps(obj gjson.Result) Steps {
	s := Steps{Type: obj.Get("type").String()}
	obj.Get("valid").ForEach(func(_, v gjson.Result) bool {
		s.Total++
		if v.Bool() {
			s.Valid++
		}
		return true
	})
	obj.Get("heading").ForEach(func(_, v gjson.Result) bool {
		if v.Float() == InvalidHeading {
			s.InvalidHeading++
		}
		return true
	})
	return s
}
