package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/tariff/internal/model"
)

// productColumns maps accepted CSV header spellings to fields.
var productColumns = map[string]string{
	"name":              "name",
	"product":           "name",
	"product_name":      "name",
	"description":       "description",
	"origin":            "origin",
	"country":           "origin",
	"country_of_origin": "origin",
	"vendor":            "vendor",
	"supplier":          "vendor",
	"sku":               "sku",
	"unit_cost":         "cost",
	"cost":              "cost",
	"materials":         "materials",
}

// parseMaterial parses "cotton=60" or "cotton:60".
func parseMaterial(s string) (model.Material, error) {
	sep := strings.IndexAny(s, "=:")
	if sep < 0 {
		return model.Material{}, fmt.Errorf("material %q: expected name=percentage", s)
	}
	name := strings.TrimSpace(s[:sep])
	pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s[sep+1:]), "%"), 64)
	if err != nil {
		return model.Material{}, fmt.Errorf("material %q: invalid percentage: %w", s, err)
	}
	return model.Material{Material: name, Percentage: pct}, nil
}

// parseMaterials parses a semicolon separated list such as "cotton:60;polyester:40".
func parseMaterials(s string) ([]model.Material, error) {
	var out []model.Material
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := parseMaterial(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseCost(s string) (*float64, error) {
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid unit cost %q: %w", s, err)
	}
	return &v, nil
}

// parseProductsCSV reads products for bulk classification. The first row is a
// header; a description column is required.
func parseProductsCSV(r io.Reader) ([]model.ProductInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("products file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	fields := make([]string, len(header))
	hasDescription := false
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		fields[i] = productColumns[strings.ReplaceAll(key, " ", "_")]
		if fields[i] == "description" {
			hasDescription = true
		}
	}
	if !hasDescription {
		return nil, errors.New("products file needs a description column")
	}

	var products []model.ProductInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var p model.ProductInput
		for i, value := range record {
			if i >= len(fields) {
				break
			}
			value = strings.TrimSpace(value)
			switch fields[i] {
			case "name":
				p.Name = value
			case "description":
				p.Description = value
			case "origin":
				p.CountryOfOrigin = value
			case "vendor":
				p.Vendor = value
			case "sku":
				p.SKU = value
			case "cost":
				if p.UnitCost, err = parseCost(value); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
			case "materials":
				if p.Materials, err = parseMaterials(value); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
			}
		}
		if p.Description == "" && p.Name == "" {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}
