package menu

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// VendorInput is the payload accepted when registering a vendor.
type VendorInput struct {
	Name       string `json:"vendor_name" validate:"required,max=255"`
	MenuURL    string `json:"menu_url" validate:"required,http_url"`
	Website    string `json:"website" validate:"omitempty,http_url"`
	Instagram  string `json:"instagram" validate:"omitempty,http_url"`
	GoogleMaps string `json:"google_maps" validate:"omitempty,http_url"`
}

// Normalized returns a copy with surrounding whitespace removed.
func (in VendorInput) Normalized() VendorInput {
	return VendorInput{
		Name:       strings.TrimSpace(in.Name),
		MenuURL:    strings.TrimSpace(in.MenuURL),
		Website:    strings.TrimSpace(in.Website),
		Instagram:  strings.TrimSpace(in.Instagram),
		GoogleMaps: strings.TrimSpace(in.GoogleMaps),
	}
}

// Validate checks required fields and URL shapes. Failures wrap ErrValidation.
func (in VendorInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "http_url":
			msgs = append(msgs, fe.Field()+" must be an http(s) URL")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Vendor builds the row to insert for this input.
func (in VendorInput) Vendor(statusCode int, now time.Time) Vendor {
	return Vendor{
		Name:    in.Name,
		MenuURL: in.MenuURL,
		Website: orNA(in.Website),
		SocialLinks: SocialLinks{
			Instagram:  orNA(in.Instagram),
			GoogleMaps: orNA(in.GoogleMaps),
		},
		ReviewLinks: map[string]string{},
		Description: NotAvailable,
		Logo:        NotAvailable,
		StatusCode:  statusCode,
		LastUpdated: now,
	}
}

func orNA(s string) string {
	if present(s) {
		return s
	}
	return NotAvailable
}
