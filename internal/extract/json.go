package extract

import (
	"strings"

	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
)

// ScanJSON locates the JSON payload inside a raw backend response.
// Generation backends wrap JSON in prose and markdown fences, so scanning for
// the outermost matching bracket pair is more robust than strictly parsing
// the whole response. An array region (first '[' to last ']') is preferred;
// otherwise the outermost object is taken and the caller treats it as a
// single-element result. isArray reports which form was found.
func ScanJSON(raw string) (payload string, isArray bool, err error) {
	open := strings.Index(raw, "[")
	close := strings.LastIndex(raw, "]")
	if open != -1 && close > open {
		return raw[open : close+1], true, nil
	}

	open = strings.Index(raw, "{")
	close = strings.LastIndex(raw, "}")
	if open != -1 && close > open {
		return raw[open : close+1], false, nil
	}

	return "", false, apperrors.NoJSONFound()
}
