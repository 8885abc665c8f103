package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/task"
)

type (
	ClusterTask  = task.Task[models.Document, []models.Cluster]
	CommentsTask = task.Task[models.Document, []models.CommentGroup]
)

var (
	ClusterKind  task.Kind[models.Document, []models.Cluster]      = documentKind[[]models.Cluster]{name: models.KindCluster}
	CommentsKind task.Kind[models.Document, []models.CommentGroup] = documentKind[[]models.CommentGroup]{name: models.KindComments}
)

// documentKind pushes documents as {"_id", "text"} objects and decodes the
// result list into R.
type documentKind[R any] struct {
	name models.TaskKind
}

func (k documentKind[R]) Name() string { return string(k.name) }

func (k documentKind[R]) EncodeItems(docs []models.Document) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (k documentKind[R]) DecodeResult(raw json.RawMessage) (R, error) {
	var result R
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Documents wraps texts with random ids, for batches that are pushed to the
// same task over several calls.
func Documents(texts ...string) []models.Document {
	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		docs[i] = models.Document{ID: models.DocID(uuid.NewString()), Text: text}
	}
	return docs
}

// IndexedDocuments wraps texts with their position as id, so results can be
// mapped straight back to the input slice.
func IndexedDocuments(texts ...string) []models.Document {
	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		docs[i] = models.Document{ID: models.IndexID(i), Text: text}
	}
	return docs
}
