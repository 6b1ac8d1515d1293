package orders

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Clone returns a deep copy of o. Item slices are never shared between
// the store and its callers.
func (o Order) Clone() Order {
	c := o
	c.RequestItems = cloneItems(o.RequestItems)
	c.RewardItems = cloneItems(o.RewardItems)
	return c
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Accepted reports whether a fulfiller has ever claimed the order.
func (o Order) Accepted() bool {
	return o.AcceptedByID != uuid.Nil
}

// ShortDescription trims the description for notification lines.
func (o Order) ShortDescription() string {
	if utf8.RuneCountInString(o.Description) <= shortDescriptionLen {
		return o.Description
	}
	runes := []rune(o.Description)
	return string(runes[:shortDescriptionLen-3]) + "..."
}

// Validate reports why o may not be admitted to the store, or nil.
func (o Order) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if o.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if _, ok := ParseStatus(string(o.Status)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	return validateContent(o.Description, o.RequestItems, o.RewardItems, o.ExperienceReward)
}

// Validate reports why the creation request is not acceptable, or nil.
func (n NewOrder) Validate() error {
	return validateContent(n.Description, n.RequestItems, n.RewardItems, n.ExperienceReward)
}

func validateContent(description string, request, reward []Item, xp int) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: blank description", ErrInvalidOrder)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description longer than %d", ErrInvalidOrder, MaxDescriptionLength)
	}
	if err := validateItems("request", request); err != nil {
		return err
	}
	if err := validateItems("reward", reward); err != nil {
		return err
	}
	if xp < 0 {
		return fmt.Errorf("%w: negative experience reward", ErrInvalidOrder)
	}
	return nil
}

func validateItems(list string, items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: empty %s items", ErrInvalidOrder, list)
	}
	if len(items) > MaxItemsPerList {
		return fmt.Errorf("%w: more than %d %s items", ErrInvalidOrder, MaxItemsPerList, list)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Kind) == "" {
			return fmt.Errorf("%w: %s item %d has no kind", ErrInvalidOrder, list, i)
		}
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return fmt.Errorf("%w: %s item %d quantity %d out of range", ErrInvalidOrder, list, i, it.Quantity)
		}
	}
	return nil
}
