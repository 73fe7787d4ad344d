package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// PointerKind tells which shape a stored session pointer had.
type PointerKind int

const (
	// PointerIdentifier is the legacy shape: a bare identity string.
	PointerIdentifier PointerKind = iota + 1
	// PointerSnapshot is the canonical shape: a serialized User.
	PointerSnapshot
)

func (k PointerKind) String() string {
	switch k {
	case PointerIdentifier:
		return "identifier"
	case PointerSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Pointer is the decoded session pointer.
type Pointer struct {
	Kind     PointerKind
	Identity string
	Snapshot *User
}

var errEmptyPointer = errors.New("empty session pointer")

// DecodePointer reads either pointer shape. A value that does not parse as a
// serialized user is treated as a bare identifier.
func DecodePointer(raw string) (Pointer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Pointer{}, errEmptyPointer
	}

	if strings.HasPrefix(raw, "{") {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return Pointer{Kind: PointerSnapshot, Identity: u.Identity(), Snapshot: &u}, nil
		}
	}

	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		raw = s
	}
	identity := NormalizeIdentity(raw)
	if identity == "" {
		return Pointer{}, errEmptyPointer
	}
	return Pointer{Kind: PointerIdentifier, Identity: identity}, nil
}

// EncodePointer serializes a user in the canonical snapshot shape.
func EncodePointer(u *User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
