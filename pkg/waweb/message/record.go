// Package message holds the canonical message record, the normalizer that
// produces it from raw protocol events, the bounded in-memory log, and the
// dispatch pipeline (persistence → webhook → handler chain).
package message

import (
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/client"
)

// Kind is the canonical message category.
type Kind string

const (
	KindChat  Kind = "chat"
	KindMedia Kind = "media"
	KindOther Kind = "other"
)

// Record is the canonical message record. Identity is ID; redelivery of
// the same protocol event must upsert, never duplicate. All fields except
// Processed are immutable after normalization.
type Record struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"` // epoch seconds
	Kind       Kind   `json:"type"`
	IsGroup    bool   `json:"isGroupMsg"`
	Author     string `json:"author,omitempty"`
	NotifyName string `json:"notifyName,omitempty"`
	FromMe     bool   `json:"fromMe"`
	Processed  bool   `json:"processed"`
}

// SenderAddress returns the address a reply should target: the authoring
// participant for group messages, the chat peer otherwise.
func (r *Record) SenderAddress() string {
	if r.IsGroup && r.Author != "" {
		return r.Author
	}
	return r.From
}

// Normalize converts a raw protocol event into a Record. The protocol's
// canonical id and group marker are taken as-is, and the timestamp is kept
// in epoch seconds for every stored and logged representation.
func Normalize(raw *client.RawMessage) *Record {
	rec := &Record{
		ID:         raw.ID,
		Body:       raw.Body,
		Timestamp:  raw.Timestamp.Unix(),
		IsGroup:    raw.IsGroup,
		NotifyName: raw.PushName,
		FromMe:     raw.FromMe,
	}

	if raw.FromMe {
		rec.From = raw.Self
		rec.To = raw.Chat
	} else {
		rec.From = raw.Chat
		rec.To = raw.Self
	}
	if raw.IsGroup {
		rec.Author = raw.Sender
	}

	switch raw.Kind {
	case client.RawText:
		rec.Kind = KindChat
	case client.RawMedia:
		rec.Kind = KindMedia
	default:
		rec.Kind = KindOther
	}
	return rec
}
