package criteria

import (
	"fmt"

	"habitat_scrooper/models"
)

const (
	minStratum = 1
	maxStratum = 6
)

// Validate rejects criteria no property could satisfy or that the evaluator
// cannot interpret. Bounds are never swapped.
func Validate(c models.SearchCriteria) error {
	h := c.Hard

	if _, err := models.ParseOperation(string(h.Operation)); err != nil {
		return invalid("hard.operation", err.Error())
	}

	if err := checkRange("hard.rooms", h.Rooms); err != nil {
		return err
	}
	if err := checkRange("hard.bathrooms", h.Bathrooms); err != nil {
		return err
	}
	if err := checkRange("hard.parking", h.Parking); err != nil {
		return err
	}
	if err := checkRange("hard.area", h.Area); err != nil {
		return err
	}
	if err := checkRange("hard.total_price", h.TotalPrice); err != nil {
		return err
	}
	if err := checkRange("hard.stratum", h.Stratum); err != nil {
		return err
	}
	if outsideStratum(h.Stratum.Min) || outsideStratum(h.Stratum.Max) {
		return invalid("hard.stratum", fmt.Sprintf("must lie within %d-%d", minStratum, maxStratum))
	}

	if len(h.Location.Neighborhoods) > 0 && h.Location.City == "" {
		return invalid("hard.location.city", "required when neighborhoods are given")
	}

	p := c.Preferences
	if p.MaxCommuteMinutes < 0 {
		return invalid("preferences.max_commute_minutes", "must not be negative")
	}
	if p.MaxCommuteMinutes > 0 && p.CommuteDestination == nil {
		return invalid("preferences.commute_destination", "required with max_commute_minutes")
	}
	return nil
}

func checkRange[T models.Number](field string, r models.Range[T]) error {
	if (r.Min != nil && *r.Min < 0) || (r.Max != nil && *r.Max < 0) {
		return invalid(field, "bounds must not be negative")
	}
	if !r.Valid() {
		return invalid(field, fmt.Sprintf("min %v greater than max %v", *r.Min, *r.Max))
	}
	return nil
}

func outsideStratum(v *int) bool {
	return v != nil && (*v < minStratum || *v > maxStratum)
}

func invalid(field, reason string) error {
	return &models.ValidationError{Field: field, Reason: reason}
}
