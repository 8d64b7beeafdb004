package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/canon"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
)

// Event is one record in a guild's append-only log.
type Event struct {
	ID        string  `json:"id"`
	Seq       int64   `json:"seq"`
	PrevHash  *string `json:"prevHash"`
	CreatedAt int64   `json:"createdAt"`
	Author    string  `json:"author"`
	Body      Body    `json:"body"`
	Signature string  `json:"signature"`
}

// unsignedForm is the shape hashed to produce an event's id. It excludes
// id and signature themselves.
type unsignedForm struct {
	Seq       int64   `json:"seq"`
	PrevHash  *string `json:"prevHash"`
	CreatedAt int64   `json:"createdAt"`
	Author    string  `json:"author"`
	Body      Body    `json:"body"`
}

// signingForm is the shape a client signs: it excludes seq/prevHash so a
// relay may assign sequence numbers on the sender's behalf.
type signingForm struct {
	Body      Body   `json:"body"`
	Author    string `json:"author"`
	CreatedAt int64  `json:"createdAt"`
}

// MarshalJSON tags the embedded body with its type, matching the wire
// shape, so id hashes are computed over the same bytes a client sees.
func (u unsignedForm) MarshalJSON() ([]byte, error) {
	bodyJSON, err := MarshalBody(u.Body)
	if err != nil {
		return nil, err
	}
	type alias struct {
		Seq       int64           `json:"seq"`
		PrevHash  *string         `json:"prevHash"`
		CreatedAt int64           `json:"createdAt"`
		Author    string          `json:"author"`
		Body      json.RawMessage `json:"body"`
	}
	return json.Marshal(alias{u.Seq, u.PrevHash, u.CreatedAt, u.Author, bodyJSON})
}

// MarshalJSON tags the embedded body with its type, matching the wire shape.
func (s signingForm) MarshalJSON() ([]byte, error) {
	bodyJSON, err := MarshalBody(s.Body)
	if err != nil {
		return nil, err
	}
	type alias struct {
		Body      json.RawMessage `json:"body"`
		Author    string          `json:"author"`
		CreatedAt int64           `json:"createdAt"`
	}
	return json.Marshal(alias{bodyJSON, s.Author, s.CreatedAt})
}

// ComputeEventID returns the canonical SHA-256 hash of an event's unsigned
// form: {seq, prevHash, createdAt, author, body}. A GUILD_CREATE body is
// hashed with its guildId blanked, since that field carries the resulting
// id itself; setting it therefore does not change the id.
func ComputeEventID(e *Event) (string, error) {
	body := e.Body
	if g, ok := body.(GuildCreateBody); ok {
		g.GuildID = ""
		body = g
	}
	id, err := canon.Hash(unsignedForm{
		Seq:       e.Seq,
		PrevHash:  e.PrevHash,
		CreatedAt: e.CreatedAt,
		Author:    e.Author,
		Body:      body,
	})
	if err != nil {
		return "", fmt.Errorf("eventlog: computing event id: %w", err)
	}
	return id, nil
}

// SigningDigest returns the raw SHA-256 digest a client signs and a relay
// verifies: hash(canonical({body, author, createdAt})). It deliberately
// does not cover seq/prevHash.
func SigningDigest(body Body, author string, createdAt int64) ([]byte, error) {
	b, err := canon.Canonicalize(signingForm{Body: body, Author: author, CreatedAt: createdAt})
	if err != nil {
		return nil, fmt.Errorf("eventlog: canonicalizing signing form: %w", err)
	}
	return sha256Sum(b), nil
}

// Sign produces the hex signature a client attaches to a publish.
func Sign(priv *cryptoid.PrivateKey, body Body, author string, createdAt int64) (string, error) {
	digest, err := SigningDigest(body, author, createdAt)
	if err != nil {
		return "", err
	}
	return cryptoid.Sign(priv, digest)
}

// VerifySignature checks e.Signature against its signing digest.
func VerifySignature(e *Event) bool {
	digest, err := SigningDigest(e.Body, e.Author, e.CreatedAt)
	if err != nil {
		return false
	}
	return cryptoid.Verify(e.Author, digest, e.Signature)
}
