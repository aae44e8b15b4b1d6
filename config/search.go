package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"habitat_scrooper/models"
)

// SavedSearch is a criteria file the scheduler runs on every tick.
type SavedSearch struct {
	Name     string                `yaml:"name"`
	Criteria models.SearchCriteria `yaml:"criteria"`
	Page     int                   `yaml:"page"`
	Limit    int                   `yaml:"limit"`
	Sort     string                `yaml:"sort"`
}

func LoadSearches(dir string) ([]*SavedSearch, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}

	var searches []*SavedSearch
	for _, path := range files {
		search, err := LoadSearch(path)
		if err != nil {
			return nil, err
		}
		searches = append(searches, search)
	}
	return searches, nil
}

// LoadSearch reads a saved search. The file name stands in for a missing
// name.
func LoadSearch(path string) (*SavedSearch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var search SavedSearch
	if err := decodeStrict(data, &search); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if search.Name == "" {
		search.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if search.Page < 1 {
		search.Page = 1
	}
	if _, err := models.ParseSortKey(search.Sort); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &search, nil
}
