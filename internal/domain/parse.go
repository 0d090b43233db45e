package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports an externally-supplied distance string that could not be
// interpreted as a feet value. It is recorded per row and never aborts a batch.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: unparseable distance %q", e.Field, e.Value)
}

// distanceRe matches a number with optional thousands separators and an
// optional feet unit, e.g. "120", "120.5 ft", "1,250 feet", "85'".
var distanceRe = regexp.MustCompile(`^([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:ft\.?|feet|')?$`)

// nullSentinels are the calculator's ways of saying "no figure for this
// scenario". They parse to null without error.
var nullSentinels = map[string]bool{
	"": true, "-": true, "--": true, "n/a": true, "na": true, "none": true,
}

// ParseDistanceFeet interprets a free-text distance from the external ASD
// calculator. It returns (nil, nil) for the documented null sentinels,
// (*value, nil) for a parseable figure, and (nil, *ParseError) otherwise.
// Negative distances cannot occur: the pattern rejects a leading sign.
func ParseDistanceFeet(field, text string) (*float64, error) {
	s := strings.TrimSpace(text)
	if nullSentinels[strings.ToLower(s)] {
		return nil, nil
	}

	m := distanceRe.FindStringSubmatch(s)
	if m == nil {
		return nil, &ParseError{Field: field, Value: text}
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil, &ParseError{Field: field, Value: text}
	}
	return &v, nil
}

// DeriveMaxRequired fills in MaxRequired from whichever variants are
// populated, or leaves it nil when all four are.
func DeriveMaxRequired(r RequiredDistances) RequiredDistances {
	var max *float64
	for _, v := range []*float64{r.ASDPPU, r.ASDBPU, r.ASDPNPD, r.ASDBNPD} {
		if v == nil {
			continue
		}
		if max == nil || *v > *max {
			value := *v
			max = &value
		}
	}
	r.MaxRequired = max
	return r
}
