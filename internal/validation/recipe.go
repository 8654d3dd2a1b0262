// Package validation holds the content rules applied to user input before
// anything is persisted.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/model"
)

// Length limits, in runes.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxStepTextLength    = 2000
	MaxIngredientLength  = 200
	MaxSteps             = 200
	MaxIngredients       = 200
)

// allowedPunctuation lists the non-alphanumeric characters accepted in
// recipe text besides whitespace.
const allowedPunctuation = `',.!?-():;/&%`

// ValidText reports whether s is non-empty and made only of letters, digits,
// whitespace and the allowed punctuation.
func ValidText(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		case strings.ContainsRune(allowedPunctuation, r):
		default:
			return false
		}
	}
	return true
}

func checkText(field, s string, maxLen int) error {
	if !ValidText(s) {
		return apperror.New(apperror.KindInvalidCharacters,
			fmt.Sprintf("%s must be non-empty and contain only letters, digits, spaces and %s", field, allowedPunctuation))
	}
	if n := len([]rune(s)); n > maxLen {
		return apperror.New(apperror.KindInvalidInput,
			fmt.Sprintf("%s exceeds %d characters", field, maxLen))
	}
	return nil
}

// Document checks a recipe document. It returns the first violation as an
// *apperror.Error with a validation kind, or nil.
func Document(doc *model.RecipeDocument) error {
	if doc == nil {
		return apperror.New(apperror.KindInvalidInput, "recipe is required")
	}

	if err := checkText("title", doc.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := checkText("description", doc.Description, MaxDescriptionLength); err != nil {
		return err
	}

	if len(doc.Ingredients) > MaxIngredients {
		return apperror.New(apperror.KindInvalidInput, fmt.Sprintf("at most %d ingredients are allowed", MaxIngredients))
	}
	for i, ing := range doc.Ingredients {
		if err := checkText(fmt.Sprintf("ingredients[%d].name", i), ing.Name, MaxIngredientLength); err != nil {
			return err
		}
		if !ing.Unit.IsValid() {
			return apperror.New(apperror.KindInvalidInput, fmt.Sprintf("ingredients[%d].unit %q is not supported", i, ing.Unit))
		}
		if ing.Amount < 0 {
			return apperror.New(apperror.KindInvalidInput, fmt.Sprintf("ingredients[%d].amount must not be negative", i))
		}
	}

	if len(doc.Steps) > MaxSteps {
		return apperror.New(apperror.KindInvalidInput, fmt.Sprintf("at most %d steps are allowed", MaxSteps))
	}
	for i, step := range doc.Steps {
		if err := checkText(fmt.Sprintf("steps[%d].text", i), step.Text, MaxStepTextLength); err != nil {
			return err
		}
	}

	return Steps(doc.Steps)
}

// Steps checks that there is at least one step and that step orders are
// pairwise distinct.
func Steps(steps []model.Step) error {
	if len(steps) == 0 {
		return apperror.New(apperror.KindEmptySteps, "recipe must have at least one step")
	}

	seen := make(map[int]struct{}, len(steps))
	for _, step := range steps {
		if _, dup := seen[step.Order]; dup {
			return apperror.New(apperror.KindDuplicateStepOrder,
				fmt.Sprintf("step order %d is used more than once", step.Order))
		}
		seen[step.Order] = struct{}{}
	}
	return nil
}
