package enums

import "fmt"

// ItemType identifies a marketplace catalog entity.
type ItemType string

const (
	ItemTypeTemplate  ItemType = "template"
	ItemTypeComponent ItemType = "component"
)

func (i ItemType) String() string {
	return string(i)
}

func (i ItemType) IsValid() bool {
	return i == ItemTypeTemplate || i == ItemTypeComponent
}

// ParseItemType accepts both singular and plural route forms.
func ParseItemType(value string) (ItemType, error) {
	switch value {
	case "template", "templates":
		return ItemTypeTemplate, nil
	case "component", "components":
		return ItemTypeComponent, nil
	}
	return "", fmt.Errorf("invalid item type %q", value)
}
