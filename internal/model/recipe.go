package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Recipe is the relational record of a recipe. DocumentRef names the
// recipe's document in the document store; it is not a foreign key.
type Recipe struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	DocumentRef string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`

	// ThumbnailPath is filled by reads that join the thumbnail record.
	ThumbnailPath string `json:"thumbnail,omitempty"`
}

// Thumbnail links a recipe to its stored image. At most one per recipe.
type Thumbnail struct {
	RecipeID int64  `json:"recipe_id"`
	Path     string `json:"path"`
}

// RecipeDocument is the user-authored content of a recipe.
type RecipeDocument struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
}

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Name   string  `json:"name"`
	Unit   Unit    `json:"unit"`
	Amount float64 `json:"amount"`
}

// Step is one instruction. Orders are unique within a document.
type Step struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// Unit is a measurement unit for ingredient amounts.
type Unit string

// Supported units.
const (
	UnitMillilitre Unit = "Millilitre"
	UnitLitre      Unit = "Litre"
	UnitTeaspoon   Unit = "Teaspoon"
	UnitTablespoon Unit = "Tablespoon"
	UnitFluidOz    Unit = "FluidOz"
	UnitPint       Unit = "Pint"
	UnitGallon     Unit = "Gallon"
	UnitMilligram  Unit = "Milligram"
	UnitGram       Unit = "Gram"
	UnitKilogram   Unit = "Kilogram"
	UnitPound      Unit = "Pound"
	UnitOunce      Unit = "Ounce"
	UnitCelsius    Unit = "Celsius"
	UnitFahrenheit Unit = "Fahrenheit"
	UnitPiece      Unit = "Piece"
)

var validUnits = map[Unit]bool{
	UnitMillilitre: true,
	UnitLitre:      true,
	UnitTeaspoon:   true,
	UnitTablespoon: true,
	UnitFluidOz:    true,
	UnitPint:       true,
	UnitGallon:     true,
	UnitMilligram:  true,
	UnitGram:       true,
	UnitKilogram:   true,
	UnitPound:      true,
	UnitOunce:      true,
	UnitCelsius:    true,
	UnitFahrenheit: true,
	UnitPiece:      true,
}

// IsValid reports whether u is a supported unit.
func (u Unit) IsValid() bool {
	return validUnits[u]
}

// UnmarshalJSON rejects unknown units at decode time.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unit must be a string: %w", err)
	}
	if !Unit(s).IsValid() {
		return fmt.Errorf("unknown unit %q", s)
	}
	*u = Unit(s)
	return nil
}

// RecipeSummary is one row of a recipe listing.
type RecipeSummary struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

// FullRecipe is a recipe with its document, poster and thumbnail resolved.
type FullRecipe struct {
	ID          int64          `json:"id"`
	Recipe      RecipeDocument `json:"recipe"`
	Poster      PublicUser     `json:"poster"`
	DateCreated time.Time      `json:"date_created"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
}
