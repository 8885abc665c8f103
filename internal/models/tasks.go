package models

import (
	"encoding/json"
	"fmt"
)

type TaskKind string

const (
	KindCluster  TaskKind = "cluster"
	KindComments TaskKind = "comments"
)

func ParseTaskKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case KindCluster, KindComments:
		return TaskKind(s), nil
	}
	return "", fmt.Errorf("unknown task kind %q (want cluster or comments)", s)
}

// StatusResponse is the body of /{kind}/status/{id}.
type StatusResponse struct {
	Status string `json:"status"`
}

// Document is one input text pushed to a task.
type Document struct {
	ID   DocID  `json:"_id"`
	Text string `json:"text"`
}

// Cluster is one group of near-duplicate documents.
type Cluster struct {
	ID   DocID   `json:"_id"`
	List []DocID `json:"list"`
	Num  int     `json:"num"`
}

// CommentGroup is one opinion shared by several comments.
type CommentGroup struct {
	ID      DocID            `json:"_id"`
	Opinion string           `json:"opinion"`
	List    []CommentMention `json:"list"`
	Num     int              `json:"num"`
}

// CommentMention is a [phrase, document id] pair.
type CommentMention struct {
	Phrase string
	DocID  DocID
}

func (m CommentMention) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{m.Phrase, m.DocID})
}

func (m *CommentMention) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("comment mention must be a [phrase, id] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("comment mention must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &m.Phrase); err != nil {
		return fmt.Errorf("comment mention phrase: %w", err)
	}
	return m.DocID.UnmarshalJSON(pair[1])
}
