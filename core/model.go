package core

import "time"

// Model is a registered artifact in the catalog
type Model struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Description  string    `json:"description,omitempty"`
	OwnerAddress string    `json:"ownerAddress"`
	ModelFileCID string    `json:"modelFileCid"`
	MetadataCID  string    `json:"metadataCid"`
	ModelHash    string    `json:"modelHash"`
	Size         int64     `json:"size"`
	Version      string    `json:"version"`
	Parents      []string  `json:"parents"`
	Likes        int       `json:"likes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ConfirmInput is what a client submits after uploading an artifact
type ConfirmInput struct {
	Name         string
	Type         string
	Description  string
	ModelFileCID string
	Size         int64
	Hash         string
	Version      string
	Parents      []string
}

// DefaultModelType is used when a confirmation omits the type
const DefaultModelType = "AI Model"

// DefaultModelVersion is assigned when a confirmation omits the version
const DefaultModelVersion = "1.0.0"

// Metadata is the document pinned next to every model file.
// It follows the OpenSea attribute layout.
type Metadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	ExternalURL string              `json:"externalUrl"`
	Attributes  []MetadataAttribute `json:"attributes"`
}

// MetadataAttribute is a single trait of the metadata document
type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}
