package service

import (
	"strings"

	"scholar-assistant/internal/domain"
)

// Classification es el resultado de clasificar un texto libre.
type Classification struct {
	Intent      string
	Text        string
	Suggestions []string
	Fallback    bool
}

// IntentClassifier asigna una intención por coincidencia de subcadenas.
// Es una función pura de (texto, catálogo) salvo en la rama de fallback,
// que elige con la RandomSource inyectada.
type IntentClassifier struct {
	catalog domain.Catalog
	rnd     RandomSource
}

// NewIntentClassifier valida y normaliza el catálogo. Con rnd nil el fallback
// siempre es el primero del conjunto.
func NewIntentClassifier(catalog domain.Catalog, rnd RandomSource) (*IntentClassifier, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &IntentClassifier{
		catalog: catalog.Normalized(),
		rnd:     rnd,
	}, nil
}

// Catalog expone el catálogo normalizado (solo lectura).
func (c *IntentClassifier) Catalog() domain.Catalog {
	return c.catalog
}

// Classify devuelve el texto de respuesta para input.
func (c *IntentClassifier) Classify(input string) string {
	return c.Match(input).Text
}

// Match recorre las reglas en orden de catálogo y devuelve la primera cuyo
// conjunto de keywords aparece como subcadena del input en minúsculas.
func (c *IntentClassifier) Match(input string) Classification {
	lowered := strings.ToLower(input)
	for _, rule := range c.catalog.Rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				return Classification{
					Intent:      rule.Intent,
					Text:        rule.Response,
					Suggestions: append([]string(nil), rule.Suggestions...),
				}
			}
		}
	}
	return Classification{
		Intent:   IntentFallback,
		Text:     c.pickFallback(),
		Fallback: true,
	}
}

func (c *IntentClassifier) pickFallback() string {
	fallbacks := c.catalog.Fallbacks
	if c.rnd == nil || len(fallbacks) == 1 {
		return fallbacks[0]
	}
	idx := c.rnd.Intn(len(fallbacks))
	if idx < 0 || idx >= len(fallbacks) {
		idx = 0
	}
	return fallbacks[idx]
}
