package figures

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Variant is one of the two independent generation pipelines per figure.
type Variant string

const (
	VariantWithImage Variant = "with_image"
	VariantTxtOnly   Variant = "txt_only"
)

// Variants lists every variant in a stable order.
var Variants = []Variant{VariantWithImage, VariantTxtOnly}

// ParseVariant accepts the canonical names plus the spellings the dashboard uses.
func ParseVariant(raw string) (Variant, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "with_image", "withimage", "with-image", "image":
		return VariantWithImage, true
	case "txt_only", "text_only", "textonly", "txtonly", "text-only", "text":
		return VariantTxtOnly, true
	default:
		return "", false
	}
}

// Stage is a generation phase.
type Stage string

const (
	StageInstructions Stage = "instructions"
	StageSVG          Stage = "svg"
)

func ParseStage(raw string) (Stage, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "instructions", "instruction", "generate-instructions":
		return StageInstructions, true
	case "svg", "generate-svg", "generatesvg":
		return StageSVG, true
	default:
		return "", false
	}
}

// State is the figure-level lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// SlotStatus tags the state of one (figure, variant, stage) slot.
type SlotStatus string

const (
	SlotNotStarted SlotStatus = "not_started"
	SlotProcessing SlotStatus = "processing"
	SlotDone       SlotStatus = "done"
	SlotFailed     SlotStatus = "failed"
)

// Slot holds the output of one (variant, stage) pipeline. Text and
// ConversationID are meaningful when Status is done; Reason when failed.
// ConversationID always names the most recent remote conversation so the
// next attempt can delete it.
type Slot struct {
	Status         SlotStatus `gorm:"column:status;not null;default:not_started" json:"status"`
	Text           string     `gorm:"column:text;type:text" json:"text,omitempty"`
	ConversationID string     `gorm:"column:conversation_id" json:"conversation_id,omitempty"`
	Reason         string     `gorm:"column:reason;type:text" json:"reason,omitempty"`
}

func (s Slot) Done() bool { return s.Status == SlotDone && strings.TrimSpace(s.Text) != "" }

type Figure struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID      string    `gorm:"column:asset_id;not null;uniqueIndex" json:"asset_id"`
	LessonTitle  string    `gorm:"column:lesson_title;not null" json:"lesson_title"`
	LessonURL    string    `gorm:"column:lesson_url;index" json:"lesson_url,omitempty"`
	ImgURL       string    `gorm:"column:img_url;type:text" json:"img_url,omitempty"`
	ImgTag       string    `gorm:"column:img_tag;type:text" json:"img_tag,omitempty"`
	Subheading   string    `gorm:"column:subheading" json:"subheading,omitempty"`
	ImgCaption   string    `gorm:"column:img_caption;type:text" json:"img_caption,omitempty"`
	CleanedXHTML string    `gorm:"column:cleaned_xhtml;type:text" json:"cleaned_xhtml,omitempty"`
	Remarks      string    `gorm:"column:remarks;type:text" json:"remarks,omitempty"`

	ImageFileID  string `gorm:"column:image_file_id" json:"image_file_id,omitempty"`
	CurrentState State  `gorm:"column:current_state;not null;default:pending;index" json:"current_state"`
	LastError    string `gorm:"column:last_error;type:text" json:"last_error,omitempty"`

	InsWithImage Slot `gorm:"embedded;embeddedPrefix:ins_with_image_" json:"instructions_with_image"`
	InsTxtOnly   Slot `gorm:"embedded;embeddedPrefix:ins_txt_only_" json:"instructions_txt_only"`
	SVGWithImage Slot `gorm:"embedded;embeddedPrefix:svg_with_image_" json:"svg_with_image"`
	SVGTxtOnly   Slot `gorm:"embedded;embeddedPrefix:svg_txt_only_" json:"svg_txt_only"`

	SVGAcceptedWithImage bool `gorm:"column:svg_accepted_with_image;not null;default:false" json:"svg_accepted_with_image"`
	SVGAcceptedTxtOnly   bool `gorm:"column:svg_accepted_txt_only;not null;default:false" json:"svg_accepted_txt_only"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Figure) TableName() string { return "figure" }

func (f *Figure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CurrentState == "" {
		f.CurrentState = StatePending
	}
	for _, s := range []*Slot{&f.InsWithImage, &f.InsTxtOnly, &f.SVGWithImage, &f.SVGTxtOnly} {
		if s.Status == "" {
			s.Status = SlotNotStarted
		}
	}
	return nil
}

// Slot returns the slot for (v, s), or nil for an unknown pair.
func (f *Figure) Slot(v Variant, s Stage) *Slot {
	switch {
	case v == VariantWithImage && s == StageInstructions:
		return &f.InsWithImage
	case v == VariantTxtOnly && s == StageInstructions:
		return &f.InsTxtOnly
	case v == VariantWithImage && s == StageSVG:
		return &f.SVGWithImage
	case v == VariantTxtOnly && s == StageSVG:
		return &f.SVGTxtOnly
	default:
		return nil
	}
}

func (f *Figure) HasImage() bool { return strings.TrimSpace(f.ImgURL) != "" }

// Instructions returns the stored instructions for v, or "". A failed or
// running re-run keeps the previous text, which still counts.
func (f *Figure) Instructions(v Variant) string {
	if s := f.Slot(v, StageInstructions); s != nil && strings.TrimSpace(s.Text) != "" {
		return s.Text
	}
	return ""
}

// HasAnyInstructions reports whether at least one variant has instructions.
func (f *Figure) HasAnyInstructions() bool {
	for _, v := range Variants {
		if f.Instructions(v) != "" {
			return true
		}
	}
	return false
}

func (f *Figure) Accepted(v Variant) bool {
	if v == VariantWithImage {
		return f.SVGAcceptedWithImage
	}
	return f.SVGAcceptedTxtOnly
}

// SlotColumns names the database columns backing one slot.
type SlotColumns struct {
	Status         string
	Text           string
	ConversationID string
	Reason         string
}

func ColumnsFor(v Variant, s Stage) SlotColumns {
	prefix := "ins_"
	if s == StageSVG {
		prefix = "svg_"
	}
	prefix += string(v) + "_"
	return SlotColumns{
		Status:         prefix + "status",
		Text:           prefix + "text",
		ConversationID: prefix + "conversation_id",
		Reason:         prefix + "reason",
	}
}

func AcceptedColumn(v Variant) string {
	return "svg_accepted_" + string(v)
}
