package enums

import "fmt"

// KeyType identifies the upstream LLM provider of a pooled API key.
type KeyType string

const (
	KeyTypeGLM        KeyType = "glm"
	KeyTypeBytez      KeyType = "bytez"
	KeyTypeOpenRouter KeyType = "openrouter"
)

var validKeyTypes = []KeyType{
	KeyTypeGLM,
	KeyTypeBytez,
	KeyTypeOpenRouter,
}

func (k KeyType) String() string {
	return string(k)
}

// IsValid reports whether the value is a known KeyType.
func (k KeyType) IsValid() bool {
	for _, candidate := range validKeyTypes {
		if candidate == k {
			return true
		}
	}
	return false
}

// UserColumn returns the users column holding the assigned key value.
func (k KeyType) UserColumn() string {
	return string(k) + "_api_key"
}

// ParseKeyType converts raw input into a KeyType.
func ParseKeyType(value string) (KeyType, error) {
	for _, candidate := range validKeyTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid key type %q", value)
}
