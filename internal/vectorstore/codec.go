package vectorstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

// pointNamespace seeds the UUIDv5 derivation of point ids. Changing it
// orphans every stored point, so it is fixed for the life of the schema.
var pointNamespace = uuid.MustParse("6e47a3b2-9c41-4f6b-8f2e-5d8a1c7e9b04")

// PointID derives the Qdrant point id for a chunk id. The mapping is
// deterministic: upserting the same chunk id always hits the same point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func docToPoint(doc models.DocumentInput) (*qdrant.PointStruct, error) {
	if doc.ID == "" {
		return nil, errors.Validation("document id must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return nil, errors.Validationf("document %s has no embedding", doc.ID)
	}
	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(doc.ID)},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: doc.Embedding},
			},
		},
		Payload: docPayload(doc),
	}, nil
}

// docPayload flattens a document into the stored payload. Key names are
// a cross-component contract; deletion filters and search results both
// depend on them. chunk_id preserves the original id because the point
// id is a derived UUID.
func docPayload(doc models.DocumentInput) map[string]*qdrant.Value {
	m := doc.Metadata
	return map[string]*qdrant.Value{
		"chunk_id":         stringValue(doc.ID),
		"content":          stringValue(doc.Content),
		"file_path":        stringValue(m.FilePath),
		"repository":       stringValue(m.Repository),
		"chunk_index":      intValue(int64(m.ChunkIndex)),
		"total_chunks":     intValue(int64(m.TotalChunks)),
		"chunk_start_line": intValue(int64(m.ChunkStartLine)),
		"chunk_end_line":   intValue(int64(m.ChunkEndLine)),
		"file_extension":   stringValue(m.FileExtension),
		"file_size_bytes":  intValue(m.FileSizeBytes),
		"content_hash":     stringValue(m.ContentHash),
		"indexed_at":       timeValue(m.IndexedAt),
		"file_modified_at": timeValue(m.FileModifiedAt),
	}
}

func scoredPointToResult(point *qdrant.ScoredPoint) models.SearchResult {
	payload := point.GetPayload()
	return models.SearchResult{
		ID:      payloadString(payload, "chunk_id"),
		Score:   point.GetScore(),
		Content: payloadString(payload, "content"),
		Metadata: models.DocumentMetadata{
			FilePath:       payloadString(payload, "file_path"),
			Repository:     payloadString(payload, "repository"),
			ChunkIndex:     int(payloadInt(payload, "chunk_index")),
			TotalChunks:    int(payloadInt(payload, "total_chunks")),
			ChunkStartLine: int(payloadInt(payload, "chunk_start_line")),
			ChunkEndLine:   int(payloadInt(payload, "chunk_end_line")),
			FileExtension:  payloadString(payload, "file_extension"),
			FileSizeBytes:  payloadInt(payload, "file_size_bytes"),
			ContentHash:    payloadString(payload, "content_hash"),
			IndexedAt:      payloadTime(payload, "indexed_at"),
			FileModifiedAt: payloadTime(payload, "file_modified_at"),
		},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func timeValue(t time.Time) *qdrant.Value {
	return stringValue(t.UTC().Format(time.RFC3339))
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	return payload[key].GetStringValue()
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	return payload[key].GetIntegerValue()
}

func payloadTime(payload map[string]*qdrant.Value, key string) time.Time {
	t, err := time.Parse(time.RFC3339, payload[key].GetStringValue())
	if err != nil {
		return time.Time{}
	}
	return t
}

func keywordMatch(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func repositoryFilter(repository string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{keywordMatch("repository", repository)},
	}
}

func fileFilter(repository, filePath string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordMatch("repository", repository),
			keywordMatch("file_path", filePath),
		},
	}
}

// searchFilter renders the optional search constraints. A nil return
// means unfiltered. Repositories become Should conditions, so any listed
// name qualifies.
func searchFilter(f SearchFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.Repository != "" {
		must = append(must, keywordMatch("repository", f.Repository))
	}
	if f.Extension != "" {
		must = append(must, keywordMatch("file_extension", f.Extension))
	}
	var should []*qdrant.Condition
	for _, repo := range f.Repositories {
		should = append(should, keywordMatch("repository", repo))
	}
	if len(must) == 0 && len(should) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, Should: should}
}
