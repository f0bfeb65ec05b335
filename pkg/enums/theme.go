package enums

import "fmt"

// Theme selects the storefront color palette.
type Theme string

const (
	ThemeIndigo  Theme = "indigo"
	ThemeEmerald Theme = "emerald"
	ThemeRose    Theme = "rose"
	ThemeAmber   Theme = "amber"
)

var validThemes = []Theme{
	ThemeIndigo,
	ThemeEmerald,
	ThemeRose,
	ThemeAmber,
}

// IsValid checks whether the given theme matches the canonical enum.
func (t Theme) IsValid() bool {
	for _, candidate := range validThemes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTheme converts raw strings into Theme.
func ParseTheme(value string) (Theme, error) {
	for _, candidate := range validThemes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid theme %q", value)
}
