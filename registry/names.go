package registry

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const optimizedSuffix = "_optimized"

// NormalizeName folds an identifier to its registry key:
// "Logistic Regression", "logistic-regression" and "logistic_regression_optimized"
// all become "logistic_regression", and "SVC (Non-PCA)" becomes "svc_non_pca".
func NormalizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		switch r {
		case ' ', '-', '_', '\t', '(', ')':
			return true
		}
		return false
	})
	key := strings.Join(fields, "_")
	return strings.TrimSuffix(key, optimizedSuffix)
}

// NameFromFile derives the registry key of an artifact file.
func NameFromFile(path string) string {
	base := filepath.Base(path)
	return NormalizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// DisplayName renders a registry key for people: "random_forest" -> "Random Forest".
func DisplayName(name string) string {
	// Casers keep state and must not be shared between goroutines.
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(NormalizeName(name), "_", " "))
}
