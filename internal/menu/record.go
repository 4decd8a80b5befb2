package menu

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Text is an optional scraped value. The scraper may emit a string, a number,
// an array of strings, or null; arrays are joined with ", ". A value that is
// empty, the NA placeholder, or a JSON object is treated as absent.
type Text struct {
	value string
	set   bool
}

// Some wraps s as a present Text.
func Some(s string) Text {
	return Text{value: s, set: true}
}

// UnmarshalJSON accepts any JSON value; objects decode as absent.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Text{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err //nolint:wrapcheck // surfaced as a parse failure by the caller
		}
		*t = Some(s)
	case '[':
		var parts []Text
		if err := json.Unmarshal(data, &parts); err != nil {
			return err //nolint:wrapcheck
		}
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if v, ok := p.Value(); ok {
				values = append(values, v)
			}
		}
		*t = Some(strings.Join(values, ", "))
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return err //nolint:wrapcheck
		}
		*t = Text{}
	default:
		*t = Some(string(data))
	}
	return nil
}

// Value returns the trimmed value and whether it is present.
func (t Text) Value() (string, bool) {
	if !t.set {
		return "", false
	}
	v := strings.TrimSpace(t.value)
	if v == "" || strings.EqualFold(v, NotAvailable) {
		return "", false
	}
	return v, true
}

// OrNA returns the value, or NotAvailable when absent.
func (t Text) OrNA() string {
	if v, ok := t.Value(); ok {
		return v
	}
	return NotAvailable
}

// MealRecord is one meal as emitted by the scraper.
type MealRecord struct {
	Name             Text `json:"meal_name"`
	Description      Text `json:"description"`
	Ingredients      Text `json:"ingredients"`
	DietaryAlignment Text `json:"dietary_alignment"`
	Price            Text `json:"price"`
	Photos           Text `json:"meal_photos"`
	URL              Text `json:"url"`
}

// Meal converts the record into a storable meal for vendorID. It reports
// false when the record has no usable name.
func (r MealRecord) Meal(vendorID int64) (Meal, bool) {
	raw, ok := r.Name.Value()
	if !ok {
		return Meal{}, false
	}
	name := NormalizeMealName(raw)
	if name == "" {
		return Meal{}, false
	}
	return Meal{
		VendorID:         vendorID,
		Name:             name,
		Description:      r.Description.OrNA(),
		Ingredients:      r.Ingredients.OrNA(),
		DietaryAlignment: NormalizeDietary(r.DietaryAlignment.OrNA()),
		Price:            r.Price.OrNA(),
		Photos:           r.Photos.OrNA(),
		URL:              r.URL.OrNA(),
	}, true
}

// MealsFromRecords converts records in order, dropping those without a name.
func MealsFromRecords(vendorID int64, records []MealRecord) []Meal {
	meals := make([]Meal, 0, len(records))
	for _, rec := range records {
		if meal, ok := rec.Meal(vendorID); ok {
			meals = append(meals, meal)
		}
	}
	return meals
}

// NormalizeMealName collapses whitespace and applies Unicode NFC so that
// equivalent spellings share one uniqueness key.
func NormalizeMealName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}

// NormalizeDietary upper-cases and de-duplicates a comma-separated code list
// such as "df, vg". An empty list becomes NotAvailable.
func NormalizeDietary(codes string) string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, part := range strings.Split(codes, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" || code == NotAvailable {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	if len(out) == 0 {
		return NotAvailable
	}
	return strings.Join(out, ", ")
}

// VendorMetadata is the vendor profile emitted by the metadata scraper.
type VendorMetadata struct {
	Name        Text            `json:"vendor_name"`
	Website     Text            `json:"website"`
	Instagram   Text            `json:"instagram"`
	GoogleMaps  Text            `json:"google_maps"`
	Description Text            `json:"vendor_description"`
	Logo        Text            `json:"vendor_logo"`
	ReviewLinks map[string]Text `json:"review_links"`
}

// ApplyTo overlays the present metadata fields onto v. Name and menu URL are
// never changed; review links are merged by source.
func (m VendorMetadata) ApplyTo(v Vendor) Vendor {
	overlay := func(dst *string, src Text) {
		if val, ok := src.Value(); ok {
			*dst = val
		}
	}
	overlay(&v.Website, m.Website)
	overlay(&v.SocialLinks.Instagram, m.Instagram)
	overlay(&v.SocialLinks.GoogleMaps, m.GoogleMaps)
	overlay(&v.Description, m.Description)
	overlay(&v.Logo, m.Logo)

	links := make(map[string]string, len(v.ReviewLinks)+len(m.ReviewLinks))
	for source, link := range v.ReviewLinks {
		links[source] = link
	}
	for source, link := range m.ReviewLinks {
		if val, ok := link.Value(); ok {
			links[strings.ToLower(strings.TrimSpace(source))] = val
		}
	}
	v.ReviewLinks = links
	return v
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, NotAvailable)
}
