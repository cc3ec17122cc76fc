// Package ingest turns menu item documents into stored embeddings. The
// Handler processes a single written item; the Pipeline loads a menu file
// and runs every item through the Handler.
package ingest

import (
	"fmt"
	"strings"
)

// Menu document field names, in template order.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldIngredients = "ingredients"
	FieldPrice       = "price"
)

// requiredFields lists the fields Flatten reads, in template order.
var requiredFields = []string{FieldName, FieldDescription, FieldIngredients, FieldPrice}

// menuTemplate is the flattened text embedded for every menu item.
const menuTemplate = "Food Name: %s . Description: %s . Ingredients: %s .Price: %s ."

// MissingFieldError reports a required menu field that is absent or null.
type MissingFieldError struct {
	// Field is the missing field name.
	Field string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("ingest: menu item is missing required field %q", e.Field)
}

// Flatten renders a menu document into the embedding text. Price may be a
// string or a number; every field is rendered with its default formatting.
func Flatten(data map[string]any) (string, error) {
	vals := make([]any, len(requiredFields))
	for i, f := range requiredFields {
		v, ok := data[f]
		if !ok || v == nil {
			return "", &MissingFieldError{Field: f}
		}
		vals[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf(menuTemplate, vals...), nil
}

// Name returns the item's display name, or "" when absent.
func Name(data map[string]any) string {
	if v, ok := data[FieldName]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}
