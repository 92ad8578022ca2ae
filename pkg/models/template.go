package models

import "time"

// Template is a versioned checklist definition for a unit. A version is
// immutable in meaning once superseded; "current" is the highest version.
type Template struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	UnitID    string    `json:"unit_id" db:"unit_id"`
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Items []TemplateItem `json:"items" db:"-"`
}

// ItemByKey returns the template item with the given key, if present
func (t *Template) ItemByKey(key string) *TemplateItem {
	for idx := range t.Items {
		if t.Items[idx].Key == key {
			return &t.Items[idx]
		}
	}
	return nil
}

// TemplateItem is one line of a checklist template. Key is unique within the
// template and survives verbatim onto cloned instance items.
type TemplateItem struct {
	ID            string    `json:"id" db:"id"`
	TemplateID    string    `json:"template_id" db:"template_id"`
	Key           string    `json:"key" db:"key"`
	Title         string    `json:"title" db:"title"`
	Description   *string   `json:"description,omitempty" db:"description"`
	Type          ItemType  `json:"type" db:"item_type"`
	Required      bool      `json:"required" db:"required"`
	RequiresPhoto bool      `json:"requires_photo" db:"requires_photo"`
	PhotoMin      *int      `json:"photo_min,omitempty" db:"photo_min"`
	SortOrder     int       `json:"sort_order" db:"sort_order"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	ExampleMedia []ExampleMedia `json:"example_media,omitempty" db:"-"`
}

// ExampleMedia is reference media shown alongside a template item
type ExampleMedia struct {
	ID             string    `json:"id" db:"id"`
	TemplateItemID string    `json:"template_item_id" db:"template_item_id"`
	URL            string    `json:"url" db:"url"`
	ObjectKey      string    `json:"object_key" db:"object_key"`
	MimeType       *string   `json:"mime_type,omitempty" db:"mime_type"`
	Caption        *string   `json:"caption,omitempty" db:"caption"`
	SortOrder      int       `json:"sort_order" db:"sort_order"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CreateTemplateItemRequest is the request to add an item to a template
type CreateTemplateItemRequest struct {
	Key           string   `json:"key" validate:"required"`
	Title         string   `json:"title" validate:"required"`
	Description   *string  `json:"description,omitempty"`
	Type          ItemType `json:"type" validate:"required"`
	Required      bool     `json:"required"`
	RequiresPhoto bool     `json:"requires_photo"`
	PhotoMin      *int     `json:"photo_min,omitempty"`
	SortOrder     *int     `json:"sort_order,omitempty"`
}

// UpdateTemplateItemRequest is the request to patch a template item
type UpdateTemplateItemRequest struct {
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Type          *ItemType `json:"type,omitempty"`
	Required      *bool     `json:"required,omitempty"`
	RequiresPhoto *bool     `json:"requires_photo,omitempty"`
	PhotoMin      *int      `json:"photo_min,omitempty"`
}

// AddExampleMediaRequest is the request to attach example media to a template item
type AddExampleMediaRequest struct {
	ObjectKey string  `json:"object_key" validate:"required"`
	URL       *string `json:"url,omitempty"`
	MimeType  *string `json:"mime_type,omitempty"`
	Caption   *string `json:"caption,omitempty"`
}
