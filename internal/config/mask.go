package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/handiism/broforce-map-downloader/internal/model"
	"gopkg.in/yaml.v3"
)

// GameplayTypes is the set of gameplay types to download, kept sorted and unique.
//
// In YAML it can be written as a digit string ("135"), a bare number (135)
// or a list of digits or names ([standard, story]).
type GameplayTypes []model.GameplayType

// Contains reports whether g is part of the set.
func (s GameplayTypes) Contains(g model.GameplayType) bool {
	return slices.Contains(s, g)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *GameplayTypes) UnmarshalYAML(node *yaml.Node) error {
	items, err := maskItems(node)
	if err != nil {
		return err
	}
	out := make(GameplayTypes, 0, len(items))
	for _, item := range items {
		g, err := model.ParseGameplayType(item)
		if err != nil {
			return err
		}
		out = append(out, g)
	}
	slices.Sort(out)
	*s = slices.Compact(out)
	return nil
}

// DifficultyLevels is the set of difficulties to download, kept sorted and unique.
// It accepts the same YAML forms as GameplayTypes.
type DifficultyLevels []model.Difficulty

// Contains reports whether d is part of the set.
func (s DifficultyLevels) Contains(d model.Difficulty) bool {
	return slices.Contains(s, d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *DifficultyLevels) UnmarshalYAML(node *yaml.Node) error {
	items, err := maskItems(node)
	if err != nil {
		return err
	}
	out := make(DifficultyLevels, 0, len(items))
	for _, item := range items {
		d, err := model.ParseDifficulty(item)
		if err != nil {
			return err
		}
		out = append(out, d)
	}
	slices.Sort(out)
	*s = slices.Compact(out)
	return nil
}

// maskItems flattens the accepted YAML forms into single-item strings.
// A scalar made only of digits is split into one item per digit.
func maskItems(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return splitScalar(node.Value), nil
	case yaml.SequenceNode:
		var items []string
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a scalar", child.Line)
			}
			items = append(items, splitScalar(child.Value)...)
		}
		return items, nil
	}
	return nil, fmt.Errorf("line %d: expected a digit string or a list", node.Line)
}

func splitScalar(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.Trim(v, "0123456789") != "" {
		return []string{v}
	}
	items := make([]string, 0, len(v))
	for _, r := range v {
		items = append(items, string(r))
	}
	return items
}
