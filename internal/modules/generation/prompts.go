package generation

import (
	"strings"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
)

const (
	withImagePrompt = "Analyse the attached image and generate instructions to re-create it to go with learning context. " +
		"The image needs to be created to fit in the context of following learning content. Learning context - "
	txtOnlyPrompt = "Generate instructions to create image to go with learning context. " +
		"The image needs to be created to fit in the context of following learning content. Learning context - "
	remarksPrefix = "\n\nPlease take care of following instructions additionally giving these higher priority: "
)

// InstructionsPrompt builds the instruction-stage prompt for v. Remarks are
// appended last so the assistant weighs them above the lesson text.
func InstructionsPrompt(f *types.Figure, v figures.Variant) string {
	var b strings.Builder
	if v == figures.VariantWithImage {
		b.WriteString(withImagePrompt)
	} else {
		b.WriteString(txtOnlyPrompt)
	}
	b.WriteString(f.CleanedXHTML)
	if r := strings.TrimSpace(f.Remarks); r != "" {
		b.WriteString(remarksPrefix)
		b.WriteString(r)
	}
	return b.String()
}

// SVGPrompt is the variant's instructions, verbatim.
func SVGPrompt(f *types.Figure, v figures.Variant) string {
	return f.Instructions(v)
}
