package cache

import "fmt"

// validateKey restricts keys to lowercase letters, digits, '-' and '_' so
// they are safe as file names and object keys.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("cache key must not be empty")
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("invalid cache key %q", key)
		}
	}
	return nil
}
