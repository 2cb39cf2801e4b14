// Package voices is the voice catalog of the synthesis pipeline: builtin
// voices aggregated from the provider registry, trained voice models resolved
// through the training store, and the language table shared by both.
package voices

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/synthesis"
	"chorus-server-go/internal/domain/training"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
)

// Catalog is the read surface the library needs from the provider registry.
type Catalog interface {
	Voices() []providers.Voice
	Capabilities(name string) (providers.Capabilities, bool)
}

// Library resolves voice identifiers for rendering and serves the catalog
// listings.
type Library struct {
	catalog Catalog
	models  training.ModelRepository
	logger  *logging.Logger
}

// New wires the library to the provider catalog and the model store.
func New(catalog Catalog, models training.ModelRepository, logger *logging.Logger) *Library {
	return &Library{
		catalog: catalog,
		models:  models,
		logger:  logger,
	}
}

// ResolveVoice maps a trained model id to its render reference. Models still
// training or failed are rejected before any provider attempt. Cloning
// backends receive the stored reference audio; backends without cloning
// address the trained voice by name.
func (l *Library) ResolveVoice(ctx context.Context, voiceModelID string) (synthesis.VoiceRef, error) {
	model, err := l.models.FindByID(ctx, voiceModelID)
	if err != nil {
		return synthesis.VoiceRef{}, errors.Wrap(errors.KindStorage, "voices.resolve",
			"cannot load voice model", err)
	}
	if model == nil {
		return synthesis.VoiceRef{}, errors.New(errors.KindNotFound, "voices.resolve",
			"voice model not found: "+voiceModelID)
	}
	if !model.Renderable() {
		return synthesis.VoiceRef{}, errors.New(errors.KindInvalidRequest, "voices.resolve",
			fmt.Sprintf("voice model %s is %s, not ready", voiceModelID, model.Status))
	}

	ref := synthesis.VoiceRef{Provider: model.Provider, Pinned: true}
	if caps, ok := l.catalog.Capabilities(model.Provider); ok && caps.VoiceCloning {
		audio, err := os.ReadFile(model.StoragePath)
		if err != nil {
			return synthesis.VoiceRef{}, errors.Wrap(errors.KindInternal, "voices.resolve",
				"cannot read artifact for voice model "+voiceModelID, err)
		}
		ref.ReferenceAudio = base64.StdEncoding.EncodeToString(audio)
		ref.ReferenceText = model.ReferenceText
	} else {
		ref.Voice = model.Name
	}
	return ref, nil
}

// BuiltinVoices lists every registered backend's builtin catalog in
// registration order.
func (l *Library) BuiltinVoices() []providers.Voice {
	return l.catalog.Voices()
}

// TrainedVoice is the catalog view of one trained model.
type TrainedVoice struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Language string  `json:"language,omitempty"`
	Provider string  `json:"provider"`
	Status   string  `json:"status"`
	Quality  float64 `json:"quality"`
	Active   bool    `json:"active"`
}

// TrainedVoices lists an owner's models newest-first, every status included:
// the caller sees training and failed runs alongside ready ones. An empty
// owner id (anonymous caller) gets no trained entries.
func (l *Library) TrainedVoices(ctx context.Context, ownerID string) ([]TrainedVoice, error) {
	if ownerID == "" {
		return nil, nil
	}
	models, err := l.models.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "voices.trained", "cannot list voice models", err)
	}

	out := make([]TrainedVoice, 0, len(models))
	for _, m := range models {
		out = append(out, TrainedVoice{
			ID:       m.ID,
			Name:     m.Name,
			Language: m.Language,
			Provider: m.Provider,
			Status:   string(m.Status),
			Quality:  m.Quality,
			Active:   m.Active,
		})
	}
	return out, nil
}

var _ synthesis.VoiceResolver = (*Library)(nil)
