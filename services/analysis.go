package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"carscout/llm"
	"carscout/models"
	"carscout/storage"
	"carscout/utils"
)

// FeatureAnalysis is the feature id of the classic price/risk analysis.
const FeatureAnalysis = "analysis"

// ErrUnknownFeature is returned for feature ids not present in the catalog.
var ErrUnknownFeature = errors.New("analysis: unknown feature")

// Feature is one analysis strategy: an instruction template sent to the model
// together with the listing prompt. All ten marketplace insights are the same
// capability parameterized this way.
type Feature struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

type featureCatalog struct {
	Features []Feature `yaml:"features"`
}

// LoadFeatures reads the feature catalog from a YAML file.
func LoadFeatures(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("analysis: read feature catalog: %w", err)
	}

	var catalog featureCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("analysis: parse feature catalog: %w", err)
	}
	if len(catalog.Features) == 0 {
		return nil, errors.New("analysis: feature catalog is empty")
	}
	return catalog.Features, nil
}

// AnalysisService assembles listing prompts, calls the language model and
// caches the structured results.
type AnalysisService struct {
	store    storage.ListingStore
	llm      *llm.Client
	features map[string]Feature
	order    []string
	ttl      time.Duration
	pool     *utils.WorkerPool
	logger   *utils.Logger
}

// NewAnalysisService creates the service. ttl bounds how long cached results
// stay valid.
func NewAnalysisService(store storage.ListingStore, client *llm.Client, features []Feature, ttl time.Duration, logger *utils.Logger) *AnalysisService {
	byID := make(map[string]Feature, len(features))
	order := make([]string, 0, len(features))
	for _, f := range features {
		byID[f.ID] = f
		order = append(order, f.ID)
	}

	return &AnalysisService{
		store:    store,
		llm:      client,
		features: byID,
		order:    order,
		ttl:      ttl,
		// LLM calls are slow and billed; keep the full dispatch bounded.
		pool:   utils.NewWorkerPool(3, 1000),
		logger: logger,
	}
}

// Features lists the catalog in file order.
func (s *AnalysisService) Features() []Feature {
	out := make([]Feature, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.features[id])
	}
	return out
}

// Analyze runs the classic price/risk analysis for a listing.
func (s *AnalysisService) Analyze(ctx context.Context, carID string) (json.RawMessage, error) {
	return s.run(ctx, carID, FeatureAnalysis, classicInstruction)
}

// AnalyzeFeature runs one catalog feature for a listing.
func (s *AnalysisService) AnalyzeFeature(ctx context.Context, carID, featureID string) (json.RawMessage, error) {
	f, ok := s.features[featureID]
	if !ok {
		return nil, ErrUnknownFeature
	}
	return s.run(ctx, carID, f.ID, f.Instruction)
}

// DispatchAll fires every catalog feature for a listing without waiting for
// completion; clients poll the insights endpoints afterwards. Returns the
// number of dispatched features.
func (s *AnalysisService) DispatchAll(carID string) int {
	// Submit blocks once the pool is saturated, so feed it off the caller's
	// goroutine. The catalog is larger than the pool.
	ids := append([]string(nil), s.order...)
	go func() {
		for _, id := range ids {
			featureID := id
			s.pool.Submit(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if _, err := s.AnalyzeFeature(ctx, carID, featureID); err != nil {
					s.logger.Warn("[analysis] Dispatched feature %s for %s failed: %v", featureID, carID, err)
				}
			})
		}
	}()
	return len(ids)
}

// CachedInsight returns the cached result for (car, feature) if still fresh.
func (s *AnalysisService) CachedInsight(carID, featureID string) (*models.Analysis, error) {
	if _, ok := s.features[featureID]; !ok && featureID != FeatureAnalysis {
		return nil, ErrUnknownFeature
	}
	return s.store.GetAnalysis(carID, featureID, time.Now().UTC().Add(-s.ttl))
}

func (s *AnalysisService) run(ctx context.Context, carID, featureID, instruction string) (json.RawMessage, error) {
	if cached, err := s.store.GetAnalysis(carID, featureID, time.Now().UTC().Add(-s.ttl)); err == nil {
		s.logger.Debug("[analysis] Cache hit for %s/%s", carID, featureID)
		return cached.Data, nil
	}

	listing, err := s.store.Get(carID)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(listing, instruction)
	text, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	data, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		ID:        uuid.NewString(),
		CarID:     carID,
		Feature:   featureID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveAnalysis(analysis); err != nil {
		// The result is still good; a failed cache write only costs a re-run.
		s.logger.Warn("[analysis] Caching %s/%s failed: %v", carID, featureID, err)
	}

	return data, nil
}

const classicInstruction = `Fournissez une analyse structurée en JSON avec:
1. price_assessment: évaluation du prix (correct/élevé/bas)
2. red_flags: signaux d'alarme potentiels
3. negotiation_tips: conseils de négociation
4. overall_score: note sur 10
5. recommendation: recommandation d'achat`

// buildPrompt assembles the French analysis prompt from the listing fields.
func buildPrompt(l *models.Listing, instruction string) string {
	var b strings.Builder
	b.WriteString("Analysez cette annonce de voiture française:\n\n")
	fmt.Fprintf(&b, "Titre: %s\n", l.Title)
	fmt.Fprintf(&b, "Prix: %s\n", optionalField(l.Price, "€"))
	fmt.Fprintf(&b, "Année: %s\n", optionalField(l.Year, ""))
	fmt.Fprintf(&b, "Kilométrage: %s\n", optionalField(l.Mileage, " km"))
	fmt.Fprintf(&b, "Carburant: %s\n", l.FuelType)
	fmt.Fprintf(&b, "Description: %s\n", l.Description)
	fmt.Fprintf(&b, "Type de vendeur: %s\n", l.SellerType)
	fmt.Fprintf(&b, "Département: %s\n\n", l.Department)
	b.WriteString(instruction)
	b.WriteString("\n\nRépondez uniquement en JSON valide.")
	return b.String()
}

func optionalField(v *int, unit string) string {
	if v == nil {
		return "non renseigné"
	}
	return fmt.Sprintf("%d%s", *v, unit)
}

// extractJSON pulls the JSON object out of a model response, tolerating code
// fences and surrounding prose.
func extractJSON(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("analysis: no JSON object in model response")
	}

	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("analysis: model response is not valid JSON")
	}
	return json.RawMessage(candidate), nil
}
