package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"scholar-assistant/internal/domain"
)

const (
	IntentScholarshipDiscovery = "scholarship_discovery"
	IntentDeadlines            = "deadlines"
	IntentEligibility          = "eligibility"
	IntentEssayTips            = "essay_tips"
	IntentFallback             = "fallback"
)

var ErrCatalogEmpty = errors.New("catalog source returned no rules")

// CatalogSource entrega el catálogo de respuestas. Se consulta una sola vez al arrancar.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// DefaultCatalog devuelve el catálogo integrado del asistente de becas.
func DefaultCatalog() domain.Catalog {
	return domain.Catalog{
		Greeting: "Hi there! 🎓 I'm your AI Scholarship Assistant. I can help you find scholarships, " +
			"understand requirements, and guide you through the application process. What would you like to know?",
		GreetingSuggestions: []string{
			"Find scholarships for me",
			"Application tips",
			"Upcoming deadlines",
			"Requirements help",
		},
		Rules: []domain.IntentRule{
			{
				Intent:   IntentScholarshipDiscovery,
				Keywords: []string{"scholarship", "find"},
				Priority: 10,
				Response: "🎯 I found several scholarships that match your profile! Based on our scholarship database, here are some great opportunities:\n\n" +
					"• Merit Excellence Award - $5,000 (Deadline: March 15)\n" +
					"• STEM Innovation Grant - $3,000 (Rolling admissions)\n" +
					"• Community Leadership Scholarship - $2,500\n\n" +
					"Would you like details on any of these?",
			},
			{
				Intent:   IntentDeadlines,
				Keywords: []string{"deadline", "when"},
				Priority: 20,
				Response: "📅 Here are upcoming scholarship deadlines:\n\n" +
					"• Merit Excellence Award - March 15 (5 days remaining)\n" +
					"• Community Service Grant - March 20\n" +
					"• Academic Achievement Award - April 1\n\n" +
					"I recommend applying as early as possible to increase your chances!",
			},
			{
				Intent:   IntentEligibility,
				Keywords: []string{"requirement", "eligibility"},
				Priority: 30,
				Response: "📋 Common scholarship requirements include:\n\n" +
					"• Minimum GPA (usually 3.0+)\n" +
					"• Personal essay or statement\n" +
					"• Letters of recommendation\n" +
					"• Proof of enrollment\n" +
					"• Financial need documentation (for need-based)\n\n" +
					"Which specific scholarship requirements would you like me to explain?",
			},
			{
				Intent:   IntentEssayTips,
				Keywords: []string{"essay", "tips"},
				Priority: 40,
				Response: "✍️ Here are my top scholarship essay tips:\n\n" +
					"• Start with a compelling personal story\n" +
					"• Show your passion and goals clearly\n" +
					"• Demonstrate impact and leadership\n" +
					"• Be authentic and specific\n" +
					"• Proofread multiple times\n\n" +
					"Would you like help with a specific essay prompt?",
			},
		},
		Fallbacks: []string{
			"That's a great question! As your AI assistant, I'm here to help with any scholarship-related queries. Could you be more specific about what you'd like to know?",
			"I'd be happy to help you with that! Can you tell me more about your specific scholarship needs or questions?",
			"Excellent! Let me help you navigate the scholarship process. What particular aspect would you like assistance with?",
		},
		QuickActions: []domain.QuickAction{
			{Label: "Find My Scholarships", Icon: "search"},
			{Label: "Upcoming Deadlines", Icon: "calendar"},
			{Label: "Essay Help", Icon: "book"},
			{Label: "Requirements Check", Icon: "target"},
		},
	}
}

type staticCatalogSource struct {
	catalog domain.Catalog
}

// NewStaticCatalogSource envuelve un catálogo ya construido.
func NewStaticCatalogSource(catalog domain.Catalog) CatalogSource {
	return staticCatalogSource{catalog: catalog}
}

func (s staticCatalogSource) LoadCatalog(_ context.Context) (domain.Catalog, error) {
	return s.catalog, nil
}

// LoadCatalog consulta source una vez y valida el resultado. Si la fuente falla
// o entrega un catálogo inválido se usa DefaultCatalog, para que el asistente
// siempre pueda arrancar.
func LoadCatalog(ctx context.Context, source CatalogSource, logger *zap.Logger) domain.Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == nil {
		return DefaultCatalog().Normalized()
	}

	catalog, err := source.LoadCatalog(ctx)
	if err == nil && len(catalog.Rules) == 0 {
		err = ErrCatalogEmpty
	}
	if err == nil {
		err = catalog.Validate()
	}
	if err != nil {
		logger.Warn("catalog source unusable, using built-in catalog", zap.Error(err))
		return DefaultCatalog().Normalized()
	}

	logger.Info("catalog loaded",
		zap.Int("rules", len(catalog.Rules)),
		zap.Int("fallbacks", len(catalog.Fallbacks)),
	)
	return catalog.Normalized()
}

// mergeCatalog completa con valores integrados los campos que una fuente
// externa no provee (saludo, sugerencias, acciones rápidas).
func mergeCatalog(partial domain.Catalog) domain.Catalog {
	def := DefaultCatalog()
	if partial.Greeting == "" {
		partial.Greeting = def.Greeting
		if len(partial.GreetingSuggestions) == 0 {
			partial.GreetingSuggestions = def.GreetingSuggestions
		}
	}
	if len(partial.Fallbacks) == 0 {
		partial.Fallbacks = def.Fallbacks
	}
	if len(partial.QuickActions) == 0 {
		partial.QuickActions = def.QuickActions
	}
	return partial
}

// MergedCatalogSource completa el catálogo de otra fuente con los valores integrados.
type MergedCatalogSource struct {
	Source CatalogSource
}

func (m MergedCatalogSource) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	if m.Source == nil {
		return DefaultCatalog(), nil
	}
	catalog, err := m.Source.LoadCatalog(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	return mergeCatalog(catalog), nil
}
