package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCatalogNoGreeting  = errors.New("catalog greeting is empty")
	ErrCatalogNoFallbacks = errors.New("catalog has no fallback responses")
	ErrCatalogInvalidRule = errors.New("catalog rule is invalid")
)

// IntentRule asocia un conjunto de palabras clave con una respuesta fija.
// Una regla coincide si la entrada en minúsculas contiene cualquiera de sus Keywords.
type IntentRule struct {
	Intent      string   `json:"intent"`
	Keywords    []string `json:"keywords"`
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
	Priority    int      `json:"priority"`
}

// Catalog es la tabla ordenada de reglas más las respuestas de fallback.
// Se trata como inmutable una vez construida y puede compartirse entre sesiones.
type Catalog struct {
	Greeting            string        `json:"greeting"`
	GreetingSuggestions []string      `json:"greeting_suggestions"`
	Rules               []IntentRule  `json:"rules"`
	Fallbacks           []string      `json:"fallbacks"`
	QuickActions        []QuickAction `json:"quick_actions"`
}

// Validate verifica que el catálogo sea utilizable por el clasificador.
func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Greeting) == "" {
		return ErrCatalogNoGreeting
	}
	if len(c.Fallbacks) == 0 {
		return ErrCatalogNoFallbacks
	}
	for i, f := range c.Fallbacks {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("fallback %d: %w", i, ErrCatalogNoFallbacks)
		}
	}
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Response) == "" {
			return fmt.Errorf("rule %d (%s): empty response: %w", i, r.Intent, ErrCatalogInvalidRule)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %d (%s): no keywords: %w", i, r.Intent, ErrCatalogInvalidRule)
		}
		for _, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("rule %d (%s): blank keyword: %w", i, r.Intent, ErrCatalogInvalidRule)
			}
		}
	}
	return nil
}

// Normalized devuelve una copia con keywords en minúsculas y reglas ordenadas
// por Priority. El orden relativo de reglas con igual prioridad se conserva.
func (c Catalog) Normalized() Catalog {
	out := Catalog{
		Greeting:            c.Greeting,
		GreetingSuggestions: append([]string(nil), c.GreetingSuggestions...),
		Fallbacks:           append([]string(nil), c.Fallbacks...),
		QuickActions:        append([]QuickAction(nil), c.QuickActions...),
		Rules:               make([]IntentRule, len(c.Rules)),
	}
	for i, r := range c.Rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			keywords = append(keywords, strings.ToLower(strings.TrimSpace(k)))
		}
		r.Keywords = keywords
		r.Suggestions = append([]string(nil), r.Suggestions...)
		out.Rules[i] = r
	}
	sort.SliceStable(out.Rules, func(i, j int) bool {
		return out.Rules[i].Priority < out.Rules[j].Priority
	})
	return out
}
