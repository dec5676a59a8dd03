package domain

import (
	"strings"
	"time"
)

// Tag asserts that an object currently holds a named label or workflow state.
// The (ObjectType, ObjectID, Tag) triple is unique: an object cannot hold the
// same tag twice.
type Tag struct {
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	Tag        string    `json:"tag"`
	AppliedAt  time.Time `json:"applied_at"`
	AppliedBy  Actor     `json:"applied_by"`
}

// NewTag validates and builds a tag fact.
func NewTag(objectType, objectID, tag string, actor Actor, now time.Time) (Tag, error) {
	objectType = strings.TrimSpace(objectType)
	objectID = strings.TrimSpace(objectID)
	tag = strings.TrimSpace(tag)
	if objectType == "" || objectID == "" || tag == "" {
		return Tag{}, ErrInvalidTag
	}
	actor = actor.Normalize()
	if err := actor.Validate(); err != nil {
		return Tag{}, err
	}
	return Tag{
		ObjectType: objectType,
		ObjectID:   objectID,
		Tag:        tag,
		AppliedAt:  now.UTC(),
		AppliedBy:  actor,
	}, nil
}

// ObjectRef identifies one business object by type and id.
type ObjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Validate checks both parts of the reference are present.
func (o ObjectRef) Validate() error {
	if strings.TrimSpace(o.Type) == "" || strings.TrimSpace(o.ID) == "" {
		return ErrInvalidID
	}
	return nil
}

