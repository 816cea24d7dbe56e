package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"

	"groundwork/internal/fault"
)

// ClassName is the single collection holding indexed chunk records.
const ClassName = "ContentChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema creates the ContentChunk class if missing and backfills any
// missing declared properties. Distance is fixed to cosine at creation;
// an existing class with a different metric is a deployment-level
// misconfiguration, not something to migrate in place.
//
// Caller metadata is flattened into meta_* string properties at write time;
// those are created by Weaviate's auto-schema and intentionally not
// declared here.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "jobId",
			DataType: []string{"string"}, // UUID as string (exact match)
		},
		{
			Name:     "source",
			DataType: []string{"string"}, // origin URL (exact match)
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "metadataJson",
			DataType: []string{"text"}, // serialized caller metadata, returned verbatim
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "An embedded chunk of ingested source content",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists: the distance metric must still be cosine.
	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}
	if cfg, ok := class.VectorIndexConfig.(map[string]interface{}); ok {
		if distance, ok := cfg["distance"].(string); ok && distance != "cosine" {
			return fmt.Errorf("%w: class %s uses distance %q, expected cosine; recreate the collection",
				fault.ErrConfiguration, ClassName, distance)
		}
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
