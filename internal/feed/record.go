// Package feed decodes the bird game's observation stream.
//
// Records arrive one per line, either as JSON objects
//
//	{"time": 12.5, "dove_location": 0.31, "falcon_id": 2, "falcon_location": 0.29}
//
// or as comma separated values in the same field order. Lines may come from
// a file, stdin or a serial port.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/birdgame/internal/tracker"
)

// ErrEmptyLine is returned by ParseRecord for blank and comment lines.
var ErrEmptyLine = errors.New("empty line")

// Record is one observation of the dove and a falcon.
type Record struct {
	Time           float64 `json:"time"`
	DoveLocation   float64 `json:"dove_location"`
	FalconID       int     `json:"falcon_id"`
	FalconLocation float64 `json:"falcon_location"`
}

// Observation projects the record onto the tracked quantity, the dove's
// location.
func (r Record) Observation() tracker.Observation {
	return tracker.Observation{Time: r.Time, Value: r.DoveLocation}
}

// ParseRecord decodes a single JSON or CSV line.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Record{}, ErrEmptyLine
	}

	var r Record
	if strings.HasPrefix(line, "{") {
		var raw struct {
			Time           *float64 `json:"time"`
			DoveLocation   *float64 `json:"dove_location"`
			FalconID       int      `json:"falcon_id"`
			FalconLocation float64  `json:"falcon_location"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return Record{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
		if raw.Time == nil {
			return Record{}, fmt.Errorf("record missing %q", "time")
		}
		if raw.DoveLocation == nil {
			return Record{}, fmt.Errorf("record missing %q", "dove_location")
		}
		r = Record{
			Time:           *raw.Time,
			DoveLocation:   *raw.DoveLocation,
			FalconID:       raw.FalconID,
			FalconLocation: raw.FalconLocation,
		}
	} else {
		segments := strings.Split(line, ",")
		if len(segments) < 2 {
			return Record{}, fmt.Errorf("expected at least 2 comma separated fields, got %d", len(segments))
		}
		var err error
		if r.Time, err = strconv.ParseFloat(strings.TrimSpace(segments[0]), 64); err != nil {
			return Record{}, fmt.Errorf("failed to parse time: %w", err)
		}
		if r.DoveLocation, err = strconv.ParseFloat(strings.TrimSpace(segments[1]), 64); err != nil {
			return Record{}, fmt.Errorf("failed to parse dove_location: %w", err)
		}
		if len(segments) >= 4 {
			if r.FalconID, err = strconv.Atoi(strings.TrimSpace(segments[2])); err != nil {
				return Record{}, fmt.Errorf("failed to parse falcon_id: %w", err)
			}
			if r.FalconLocation, err = strconv.ParseFloat(strings.TrimSpace(segments[3]), 64); err != nil {
				return Record{}, fmt.Errorf("failed to parse falcon_location: %w", err)
			}
		}
	}

	if math.IsNaN(r.Time) || math.IsInf(r.Time, 0) {
		return Record{}, fmt.Errorf("time %v is not finite", r.Time)
	}
	if math.IsNaN(r.DoveLocation) || math.IsInf(r.DoveLocation, 0) {
		return Record{}, fmt.Errorf("dove_location %v is not finite", r.DoveLocation)
	}
	return r, nil
}
