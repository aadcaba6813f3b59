package profile

import "fmt"

// ValidateName rejects profile names that could escape the profiles
// directory or collide with path separators.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("profile name too long: %d chars", len(name))
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("profile name contains invalid character %q", r)
		}
	}
	return nil
}
