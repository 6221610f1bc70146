package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	segmentText    = "text"
	segmentMention = "mention"
)

type wireSegment struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type wireToken struct {
	Type           string `json:"type"`
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Sprite         string `json:"sprite,omitempty"`
	NationalNumber int    `json:"nationalNumber,omitempty"`
	MoveType       string `json:"moveType,omitempty"`
	MoveCategory   string `json:"moveCategory,omitempty"`
}

type wireDocument struct {
	Segments []wireSegment `json:"segments"`
}

// Serialize encodes doc as the storage envelope
//
//	{"segments":[{"type":"text","content":"..."},{"type":"mention","content":{...}}]}
func Serialize(doc Document) (string, error) {
	if len(doc) == 0 {
		doc = Empty()
	}
	out := wireDocument{Segments: make([]wireSegment, 0, len(doc))}
	for i, s := range doc {
		var (
			kind    string
			payload any
		)
		switch v := s.(type) {
		case Text:
			kind, payload = segmentText, v.Content
		case Mention:
			if err := Validate(v.Token); err != nil {
				return "", fmt.Errorf("segment %d: %w", i, err)
			}
			kind, payload = segmentMention, encodeToken(v.Token)
		default:
			return "", fmt.Errorf("segment %d: unsupported segment %T", i, s)
		}
		content, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
		out.Segments = append(out.Segments, wireSegment{Type: kind, Content: content})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize decodes a stored string. It never fails: anything that is not
// a JSON object with a "segments" array is legacy plain text and comes back
// as a single Text holding the input verbatim.
func Deserialize(stored string) Document {
	legacy := Document{Text{Content: stored}}

	trimmed := strings.TrimSpace(stored)
	if !strings.HasPrefix(trimmed, "{") {
		return legacy
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return legacy
	}
	raw, ok := envelope["segments"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return legacy
	}
	var segments []wireSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return legacy
	}

	doc := make(Document, 0, len(segments))
	for _, ws := range segments {
		if s, ok := decodeSegment(ws); ok {
			doc = append(doc, s)
		}
	}
	if len(doc) == 0 {
		return Empty()
	}
	return doc
}

// decodeSegment degrades entries it cannot fully decode: a mention that
// still has a name becomes its anchor as text, an unknown entry with string
// content becomes that text, anything else is dropped.
func decodeSegment(ws wireSegment) (Segment, bool) {
	switch ws.Type {
	case segmentMention:
		var wt wireToken
		if err := json.Unmarshal(ws.Content, &wt); err != nil {
			return nil, false
		}
		tok, err := decodeToken(wt)
		if err != nil {
			if wt.Name == "" {
				return nil, false
			}
			return Text{Content: "@" + wt.Name}, true
		}
		return Mention{Token: tok}, true
	default:
		var content string
		if err := json.Unmarshal(ws.Content, &content); err != nil {
			return nil, false
		}
		return Text{Content: content}, true
	}
}

func encodeToken(t Token) wireToken {
	wt := wireToken{Type: t.Category().String(), ID: t.EntityID(), Name: t.DisplayName()}
	switch v := t.(type) {
	case Creature:
		wt.Sprite = v.Sprite
		wt.NationalNumber = v.NationalNumber
	case Move:
		wt.MoveType = v.Kind
		wt.MoveCategory = v.Class
	case Item:
		wt.Sprite = v.Sprite
	}
	return wt
}

func decodeToken(wt wireToken) (Token, error) {
	category, err := ParseCategory(wt.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch category {
	case CategoryCreature:
		return NewCreature(wt.ID, wt.Name, wt.Sprite, wt.NationalNumber)
	case CategoryMove:
		return NewMove(wt.ID, wt.Name, wt.MoveType, wt.MoveCategory)
	case CategoryItem:
		return NewItem(wt.ID, wt.Name, wt.Sprite)
	default:
		return NewAbility(wt.ID, wt.Name)
	}
}
