package domain

// Band is the Low/Medium/High classification of a likelihood x impact rating
type Band string

const (
	BandLow    Band = "Low"
	BandMedium Band = "Medium"
	BandHigh   Band = "High"
)

const (
	MinLevel = 1
	MaxLevel = 5
)

// Score maps likelihood and impact to a rating and its band.
// Low is 1..6, Medium 7..14, High 15..25.
func Score(likelihood, impact int) (int, Band) {
	rating := likelihood * impact
	return rating, BandFor(rating)
}

// BandFor classifies a rating
func BandFor(rating int) Band {
	switch {
	case rating >= 15:
		return BandHigh
	case rating >= 7:
		return BandMedium
	default:
		return BandLow
	}
}

// ValidateLevel checks a likelihood or impact value
func ValidateLevel(field string, v int) error {
	if v < MinLevel || v > MaxLevel {
		return NewValidation("%s must be between %d and %d", field, MinLevel, MaxLevel)
	}
	return nil
}

// Severity is an optional derived score; both fields are nil unless
// likelihood and impact are both known.
type Severity struct {
	Rating *int  `json:"rating"`
	Band   *Band `json:"band"`
}

// SeverityOf derives a Severity from optional likelihood and impact
func SeverityOf(likelihood, impact *int) Severity {
	if likelihood == nil || impact == nil {
		return Severity{}
	}
	rating, band := Score(*likelihood, *impact)
	return Severity{Rating: &rating, Band: &band}
}
