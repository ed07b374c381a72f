package devserver

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ProductSeed is one product file from the seed directory.
type ProductSeed struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
	VendorEmail string   `json:"vendor_email"`
}

// LoadProducts loads all product JSON files from the specified directory.
// A file may hold a single object or an array of objects.
func LoadProducts(dir string) ([]ProductSeed, error) {
	var seeds []ProductSeed
	if strings.TrimSpace(dir) == "" {
		return seeds, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		batch, err := decodeSeeds(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		for _, seed := range batch {
			if err := validateProductSeed(seed); err != nil {
				return fmt.Errorf("invalid product in %s: %w", path, err)
			}
		}
		seeds = append(seeds, batch...)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return seeds, nil
}

func decodeSeeds(data []byte) ([]ProductSeed, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var batch []ProductSeed
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var seed ProductSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	return []ProductSeed{seed}, nil
}

// validateProductSeed performs basic validation on ProductSeed.
func validateProductSeed(seed ProductSeed) error {
	if seed.Name == "" {
		return fmt.Errorf("name is required")
	}
	if seed.Price < 0 {
		return fmt.Errorf("invalid price: %v", seed.Price)
	}
	if seed.Stock < 0 {
		return fmt.Errorf("invalid stock: %d", seed.Stock)
	}
	if seed.ID != "" && !validObjectID(seed.ID) {
		return fmt.Errorf("invalid id %q: want 24 hex characters", seed.ID)
	}
	return nil
}
