package composefile

import (
	"context"
	"errors"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Post-Patch Validation
// =============================================================================

var (
	ErrEmptyDocument = errors.New("compose document is empty")
	ErrInvalidYAML   = errors.New("invalid YAML syntax")
)

// ValidatePatched runs the patched document through the compose loader
// as an advisory structural check. The patch operations themselves stay
// textual and must not depend on full-schema loader fidelity, so
// callers log a failure and keep the patched document rather than
// discarding it. The injected ${VAR:-fallback} bindings interpolate to
// their fallbacks during the check.
func ValidatePatched(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return ErrEmptyDocument
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(doc), &dict); err != nil {
		return ErrInvalidYAML
	}
	if dict == nil {
		return ErrInvalidYAML
	}

	_, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(doc),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("patch-check", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false // exercise the injected fallbacks
		// In-memory document: no paths to resolve, no external files to follow.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	return err
}
