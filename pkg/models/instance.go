package models

import (
	"encoding/json"
	"time"
)

// Stage identifies where in the cleaning/repair pipeline a checklist instance lives
type Stage string

const (
	StagePreCleaning      Stage = "PRE_CLEANING"
	StageCleaning         Stage = "CLEANING"
	StageFinalReport      Stage = "FINAL_REPORT"
	StageRepairInspection Stage = "REPAIR_INSPECTION"
	StageRepairResult     Stage = "REPAIR_RESULT"
)

// IsValid reports whether the stage is one of the known pipeline stages
func (s Stage) IsValid() bool {
	switch s {
	case StagePreCleaning, StageCleaning, StageFinalReport, StageRepairInspection, StageRepairResult:
		return true
	}
	return false
}

// IsRepair reports whether the stage belongs to the repair pipeline
func (s Stage) IsRepair() bool {
	return s == StageRepairInspection || s == StageRepairResult
}

// InstanceStatus is the lifecycle state of a checklist instance
type InstanceStatus string

const (
	InstanceStatusDraft     InstanceStatus = "DRAFT"
	InstanceStatusSubmitted InstanceStatus = "SUBMITTED"
	InstanceStatusLocked    InstanceStatus = "LOCKED"
)

// ItemType defines what kind of answer a checklist item accepts
type ItemType string

const (
	ItemTypeBool      ItemType = "BOOL"
	ItemTypeText      ItemType = "TEXT"
	ItemTypeNumber    ItemType = "NUMBER"
	ItemTypeSelect    ItemType = "SELECT"
	ItemTypePhotoOnly ItemType = "PHOTO_ONLY"
)

// IsValid reports whether the item type is one of the known types
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeBool, ItemTypeText, ItemTypeNumber, ItemTypeSelect, ItemTypePhotoOnly:
		return true
	}
	return false
}

// Instance is the working checklist for one concrete cleaning or repair occasion
type Instance struct {
	ID               string         `json:"id" db:"id"`
	TenantID         string         `json:"tenant_id" db:"tenant_id"`
	UnitID           string         `json:"unit_id" db:"unit_id"`
	Stage            Stage          `json:"stage" db:"stage"`
	Status           InstanceStatus `json:"status" db:"status"`
	TemplateID       *string        `json:"template_id,omitempty" db:"template_id"`
	TemplateVersion  *int           `json:"template_version,omitempty" db:"template_version"`
	CleaningID       *string        `json:"cleaning_id,omitempty" db:"cleaning_id"`
	RepairID         *string        `json:"repair_id,omitempty" db:"repair_id"`
	ParentInstanceID *string        `json:"parent_instance_id,omitempty" db:"parent_instance_id"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`

	Items       []InstanceItem `json:"items" db:"-"`
	Answers     []Answer       `json:"answers" db:"-"`
	Attachments []Attachment   `json:"attachments" db:"-"`
}

// ItemByKey returns the instance item with the given key, if present
func (i *Instance) ItemByKey(key string) *InstanceItem {
	for idx := range i.Items {
		if i.Items[idx].Key == key {
			return &i.Items[idx]
		}
	}
	return nil
}

// InstanceItem is a single checkable line on an instance
type InstanceItem struct {
	ID            string    `json:"id" db:"id"`
	InstanceID    string    `json:"instance_id" db:"instance_id"`
	Key           string    `json:"key" db:"key"`
	Title         string    `json:"title" db:"title"`
	Description   *string   `json:"description,omitempty" db:"description"`
	Type          ItemType  `json:"type" db:"item_type"`
	Required      bool      `json:"required" db:"required"`
	RequiresPhoto bool      `json:"requires_photo" db:"requires_photo"`
	PhotoMin      *int      `json:"photo_min,omitempty" db:"photo_min"`
	SortOrder     int       `json:"sort_order" db:"sort_order"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// MinPhotos returns the effective photo requirement for the item
func (i InstanceItem) MinPhotos() int {
	if i.PhotoMin != nil && *i.PhotoMin > 0 {
		return *i.PhotoMin
	}
	return 1
}

// Answer is the recorded value for one instance item. At most one answer
// exists per (instance_id, item_key).
type Answer struct {
	ID         string          `json:"id" db:"id"`
	InstanceID string          `json:"instance_id" db:"instance_id"`
	ItemKey    string          `json:"item_key" db:"item_key"`
	Value      json.RawMessage `json:"value,omitempty" db:"value"`
	Note       *string         `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Attachment is a photo (or other media object) attached to an instance item.
// Attachments are append-only; multi-photo items carry several rows.
type Attachment struct {
	ID         string    `json:"id" db:"id"`
	InstanceID string    `json:"instance_id" db:"instance_id"`
	ItemKey    string    `json:"item_key" db:"item_key"`
	URL        string    `json:"url" db:"url"`
	ObjectKey  *string   `json:"object_key,omitempty" db:"object_key"`
	Caption    *string   `json:"caption,omitempty" db:"caption"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PresignedUpload is a one-shot upload slot handed to a client
type PresignedUpload struct {
	URL       string `json:"url"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// CreateInstanceRequest is the request to create a checklist instance
type CreateInstanceRequest struct {
	UnitID             string  `json:"unit_id" validate:"required"`
	Stage              Stage   `json:"stage" validate:"required"`
	CleaningID         *string `json:"cleaning_id,omitempty"`
	RepairID           *string `json:"repair_id,omitempty"`
	IsPlannedInspection bool   `json:"is_planned_inspection"`
}

// AddItemRequest is the request to add a custom item to a draft instance
type AddItemRequest struct {
	Key           string   `json:"key" validate:"required"`
	Title         string   `json:"title" validate:"required"`
	Description   *string  `json:"description,omitempty"`
	Type          ItemType `json:"type" validate:"required"`
	Required      bool     `json:"required"`
	RequiresPhoto bool     `json:"requires_photo"`
	PhotoMin      *int     `json:"photo_min,omitempty"`
	SortOrder     *int     `json:"sort_order,omitempty"`
}

// UpdateItemRequest is the request to patch an item on a draft instance
type UpdateItemRequest struct {
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Type          *ItemType `json:"type,omitempty"`
	Required      *bool     `json:"required,omitempty"`
	RequiresPhoto *bool     `json:"requires_photo,omitempty"`
	PhotoMin      *int      `json:"photo_min,omitempty"`
	SortOrder     *int      `json:"sort_order,omitempty"`
}

// AnswerRequest is the request to record an answer for an item
type AnswerRequest struct {
	Value json.RawMessage `json:"value,omitempty"`
	Note  *string         `json:"note,omitempty"`
}

// AttachRequest is the request to attach an uploaded object to an item
type AttachRequest struct {
	ObjectKey string  `json:"object_key" validate:"required"`
	URL       *string `json:"url,omitempty"`
	Caption   *string `json:"caption,omitempty"`
}
