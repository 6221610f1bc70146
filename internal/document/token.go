package document

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the closed set of entity kinds a mention can point at.
type Category int

const (
	CategoryCreature Category = iota + 1
	CategoryMove
	CategoryItem
	CategoryAbility
)

// Categories lists every category in display order.
var Categories = []Category{CategoryCreature, CategoryMove, CategoryItem, CategoryAbility}

var categoryNames = map[Category]string{
	CategoryCreature: "creature",
	CategoryMove:     "move",
	CategoryItem:     "item",
	CategoryAbility:  "ability",
}

// ErrInvalidToken is returned when a token fails construction-time checks.
var ErrInvalidToken = errors.New("document: invalid token")

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: category %d", ErrInvalidToken, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name, see ParseCategory.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory maps a wire name to a Category. "pokemon" is accepted as a
// legacy alias of creature.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "creature", "pokemon":
		return CategoryCreature, nil
	case "move":
		return CategoryMove, nil
	case "item":
		return CategoryItem, nil
	case "ability":
		return CategoryAbility, nil
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// Token is an atomic, typed pointer to an external entity. The metadata is
// a snapshot taken at insertion time.
//
// Token is sealed: Creature, Move, Item and Ability are its only
// implementations.
type Token interface {
	Category() Category
	EntityID() int
	DisplayName() string
	// Icon returns the sprite or icon URL, if the category carries one.
	Icon() string
	isToken()
}

type Creature struct {
	ID             int
	Name           string
	Sprite         string
	NationalNumber int
}

type Move struct {
	ID    int
	Name  string
	Kind  string // element, e.g. "fire"
	Class string // physical, special or status
}

type Item struct {
	ID     int
	Name   string
	Sprite string
}

type Ability struct {
	ID   int
	Name string
}

func (Creature) Category() Category    { return CategoryCreature }
func (t Creature) EntityID() int       { return t.ID }
func (t Creature) DisplayName() string { return t.Name }
func (t Creature) Icon() string        { return t.Sprite }
func (Creature) isToken()              {}

// RouteID is the identifier used for navigation: the national number when
// known, the entity id otherwise.
func (t Creature) RouteID() int {
	if t.NationalNumber > 0 {
		return t.NationalNumber
	}
	return t.ID
}

func (Move) Category() Category    { return CategoryMove }
func (t Move) EntityID() int       { return t.ID }
func (t Move) DisplayName() string { return t.Name }
func (Move) Icon() string          { return "" }
func (Move) isToken()              {}

func (Item) Category() Category    { return CategoryItem }
func (t Item) EntityID() int       { return t.ID }
func (t Item) DisplayName() string { return t.Name }
func (t Item) Icon() string        { return t.Sprite }
func (Item) isToken()              {}

func (Ability) Category() Category    { return CategoryAbility }
func (t Ability) EntityID() int       { return t.ID }
func (t Ability) DisplayName() string { return t.Name }
func (Ability) Icon() string          { return "" }
func (Ability) isToken()              {}

// Anchor is the flat-text form of a token: "@" followed by its name. A nil
// token has no flat form.
func Anchor(t Token) string {
	if t == nil {
		return ""
	}
	return "@" + t.DisplayName()
}

// Validate checks the invariants every token must hold regardless of its
// category.
func Validate(t Token) error {
	if t == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidToken)
	}
	if !t.Category().Valid() {
		return fmt.Errorf("%w: category %s", ErrInvalidToken, t.Category())
	}
	if t.EntityID() <= 0 {
		return fmt.Errorf("%w: %s id %d", ErrInvalidToken, t.Category(), t.EntityID())
	}
	name := t.DisplayName()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidToken)
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: name %q spans lines", ErrInvalidToken, name)
	}
	return nil
}

// NewCreature builds a validated creature token.
func NewCreature(id int, name, sprite string, nationalNumber int) (Creature, error) {
	t := Creature{ID: id, Name: name, Sprite: sprite, NationalNumber: nationalNumber}
	if nationalNumber < 0 {
		return Creature{}, fmt.Errorf("%w: negative national number", ErrInvalidToken)
	}
	if err := Validate(t); err != nil {
		return Creature{}, err
	}
	return t, nil
}

// NewMove builds a validated move token.
func NewMove(id int, name, kind, class string) (Move, error) {
	t := Move{ID: id, Name: name, Kind: kind, Class: class}
	if err := Validate(t); err != nil {
		return Move{}, err
	}
	return t, nil
}

// NewItem builds a validated item token.
func NewItem(id int, name, sprite string) (Item, error) {
	t := Item{ID: id, Name: name, Sprite: sprite}
	if err := Validate(t); err != nil {
		return Item{}, err
	}
	return t, nil
}

// NewAbility builds a validated ability token.
func NewAbility(id int, name string) (Ability, error) {
	t := Ability{ID: id, Name: name}
	if err := Validate(t); err != nil {
		return Ability{}, err
	}
	return t, nil
}
