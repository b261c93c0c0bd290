package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type IDType string

const (
	IDTypeTask       IDType = "task"
	IDTypeDependency IDType = "dep"
	IDTypeTimeLog    IDType = "tlog"
	IDTypeReview     IDType = "rev"
)

var validIDTypes = map[IDType]bool{
	IDTypeTask:       true,
	IDTypeDependency: true,
	IDTypeTimeLog:    true,
	IDTypeReview:     true,
}

var idRegex = regexp.MustCompile(`^(task|dep|tlog|rev)_([0-9A-HJKMNP-TV-Z]{26})$`)

// GenerateID returns a sortable id such as task_01J9Z3K4W7T8XG2M0S5VQ6B1RD.
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	return fmt.Sprintf("%s_%s", idType, ulid.Make().String()), nil
}

// MustGenerateID is GenerateID for id types known at compile time.
func MustGenerateID(idType IDType) string {
	id, err := GenerateID(idType)
	if err != nil {
		panic(err)
	}
	return id
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

func ParseIDType(id string) (IDType, error) {
	match := idRegex.FindStringSubmatch(id)
	if match == nil {
		return "", fmt.Errorf("invalid ID format: %s", id)
	}
	return IDType(match[1]), nil
}

func ParseIDTimestamp(id string) (time.Time, error) {
	match := idRegex.FindStringSubmatch(id)
	if match == nil {
		return time.Time{}, fmt.Errorf("invalid ID format: %s", id)
	}
	u, err := ulid.ParseStrict(strings.ToUpper(match[2]))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from ID %s: %w", id, err)
	}
	return ulid.Time(u.Time()), nil
}
