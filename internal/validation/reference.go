// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

const referencePrefix = "MBG-"

// IsValidReference проверяет формат внутреннего платёжного референса:
// MBG-<идентификатор пользователя>-<метка времени>.
func IsValidReference(reference string) bool {
	if !strings.HasPrefix(reference, referencePrefix) {
		return false
	}

	rest := strings.TrimPrefix(reference, referencePrefix)
	parts := strings.Split(rest, "-")
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !unicode.IsDigit(ch) {
				return false
			}
		}
	}

	return true
}

// IsPDFDocument проверяет, что имя документа имеет расширение PDF.
// Принимается только PDF; проверка по суффиксу имени файла.
func IsPDFDocument(name string) bool {
	if len(name) <= len(".pdf") {
		return false
	}
	return strings.EqualFold(name[len(name)-len(".pdf"):], ".pdf")
}
