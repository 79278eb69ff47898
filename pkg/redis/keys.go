package redis

import "fmt"

// PressHistoryKey returns the key for the delivered press log (list, newest first)
// Pattern: doorbell:presses:{service}
func PressHistoryKey(service string) string {
	return fmt.Sprintf("doorbell:presses:%s", service)
}

// PressMetaKey returns the key for press counters and last press time (hash)
// Pattern: doorbell:meta:{service}
func PressMetaKey(service string) string {
	return fmt.Sprintf("doorbell:meta:%s", service)
}
