package domain

import (
	"cmp"
	"slices"

	dErrors "mutuals/pkg/domain-errors"
)

// maxIDLength bounds identifiers at the width of an unsigned 64-bit decimal.
const maxIDLength = 20

// UserID names one remote account. It is a decimal snowflake kept as a string
// so it survives JSON round-trips without float truncation.
type UserID string

// GroupID is an opaque group identifier as returned by the API.
type GroupID string

// ParseUserID validates that s is a non-empty decimal token.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id cannot be empty")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id too long")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "user id must be decimal digits")
		}
	}
	return UserID(s), nil
}

// ParseGroupID accepts any non-empty token.
func ParseGroupID(s string) (GroupID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "group id cannot be empty")
	}
	return GroupID(s), nil
}

func (id UserID) String() string {
	return string(id)
}

func (id UserID) IsNil() bool {
	return id == ""
}

func (id GroupID) String() string {
	return string(id)
}

// Compare orders decimal ids numerically: a shorter digit string is smaller,
// equal lengths compare lexically. Leading zeros are not produced by the API.
func (id UserID) Compare(other UserID) int {
	if c := cmp.Compare(len(id), len(other)); c != 0 {
		return c
	}
	return cmp.Compare(string(id), string(other))
}

// SortedUnique returns ids deduplicated and in numeric order. The input is not modified.
func SortedUnique(ids []UserID) []UserID {
	out := slices.Clone(ids)
	slices.SortFunc(out, UserID.Compare)
	return slices.Compact(out)
}
