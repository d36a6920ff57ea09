package content

import (
	"time"

	"github.com/folio-cms/folio/internal/models"
)

// Input is a create or update payload. Nil fields are left untouched on update.
type Input struct {
	Title          *string          `json:"title"`
	Subtitle       *string          `json:"subtitle"`
	Slug           *string          `json:"slug"`
	Status         *models.Status   `json:"status"`
	Author         *string          `json:"author"`
	CreatedAt      *time.Time       `json:"createdAt"`
	PublishDate    *time.Time       `json:"publishDate"`
	Excerpt        *string          `json:"excerpt"`
	SEODescription *string          `json:"seoDescription"`
	FeaturedImage  *string          `json:"featuredImage"`
	Gallery        *[]string        `json:"gallery"`
	Body           *string          `json:"body"`
	Category       *string          `json:"category"`
	Tags           *[]string        `json:"tags"`
	RelatedPosts   *[]string        `json:"relatedPosts"`
	PageType       *models.PageType `json:"pageType"`
	ParentPage     *string          `json:"parentPage"`
	// Extra keys are merged into the item's open bag; a null value removes the key.
	Extra map[string]any `json:"extra"`
}

// WriteOptions tunes a store write.
type WriteOptions struct {
	// Overwrite replaces an existing item that already owns the target slug.
	Overwrite bool
}

// Op names the kind of mutation that happened.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation describes a completed store write.
type Mutation struct {
	Kind models.Kind `json:"kind"`
	ID   string      `json:"id"`
	Slug string      `json:"slug"`
	Op   Op          `json:"op"`
}

// Ptr is a small helper for building Input literals.
func Ptr[T any](v T) *T { return &v }
