package mockserver

import (
	"strings"

	"github.com/kelsos/bosonnlp-go/internal/models"
)

type group struct {
	key  string
	text string
	docs []models.DocID
}

// normalize folds case and whitespace so trivially different copies of a
// text land in the same group.
func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// groupDocuments buckets documents by normalized text in order of first
// appearance.
func groupDocuments(docs []models.Document) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, d := range docs {
		key := normalize(d.Text)
		if key == "" {
			continue
		}
		g, ok := index[key]
		if !ok {
			g = &group{key: key, text: strings.TrimSpace(d.Text)}
			index[key] = g
			groups = append(groups, g)
		}
		g.docs = append(g.docs, d.ID)
	}
	return groups
}

// clusters reports every group with at least two members.
func clusters(docs []models.Document) []models.Cluster {
	result := []models.Cluster{}
	for _, g := range groupDocuments(docs) {
		if len(g.docs) < 2 {
			continue
		}
		result = append(result, models.Cluster{
			ID:   models.IndexID(len(result)),
			List: g.docs,
			Num:  len(g.docs),
		})
	}
	return result
}

// commentGroups reports every group with at least two members, using the
// shared text as the opinion.
func commentGroups(docs []models.Document) []models.CommentGroup {
	result := []models.CommentGroup{}
	for _, g := range groupDocuments(docs) {
		if len(g.docs) < 2 {
			continue
		}
		mentions := make([]models.CommentMention, 0, len(g.docs))
		for _, id := range g.docs {
			mentions = append(mentions, models.CommentMention{Phrase: g.text, DocID: id})
		}
		result = append(result, models.CommentGroup{
			ID:      models.IndexID(len(result)),
			Opinion: g.text,
			List:    mentions,
			Num:     len(g.docs),
		})
	}
	return result
}
