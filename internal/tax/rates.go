package tax

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rates.yaml
var defaultRates []byte

// IRPFRates ставки удержания подоходного налога.
type IRPFRates struct {
	Country  string  `yaml:"country"`
	Standard float64 `yaml:"standard"`
	Reduced  float64 `yaml:"reduced"`
}

// Rates таблица ставок, загружаемая из YAML.
type Rates struct {
	VAT  map[string]float64 `yaml:"vat"`
	IRPF IRPFRates          `yaml:"irpf"`
}

// LoadRates читает таблицу ставок из файла, либо встроенную, если путь пуст.
func LoadRates(path string) (*Rates, error) {
	raw := defaultRates
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tax: не удалось прочитать таблицу ставок %s: %w", path, err)
		}
		raw = data
	}
	return ParseRates(raw)
}

// ParseRates разбирает YAML и проверяет ставки.
func ParseRates(raw []byte) (*Rates, error) {
	var parsed Rates
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("tax: некорректный YAML: %w", err)
	}
	if len(parsed.VAT) == 0 {
		return nil, fmt.Errorf("tax: таблица НДС пуста")
	}

	normalized := make(map[string]float64, len(parsed.VAT))
	for country, rate := range parsed.VAT {
		if rate < 0 || rate >= 100 {
			return nil, fmt.Errorf("tax: недопустимая ставка НДС %v для %s", rate, country)
		}
		normalized[strings.ToUpper(strings.TrimSpace(country))] = rate
	}
	parsed.VAT = normalized
	parsed.IRPF.Country = strings.ToUpper(parsed.IRPF.Country)

	if parsed.IRPF.Standard < 0 || parsed.IRPF.Reduced < 0 || parsed.IRPF.Reduced > parsed.IRPF.Standard {
		return nil, fmt.Errorf("tax: некорректные ставки IRPF")
	}

	return &parsed, nil
}
