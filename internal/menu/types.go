// Package menu defines the vendor, meal, and scrape job types shared across subsystems.
package menu

import "time"

// NotAvailable is the literal stored for any field the scraper could not supply.
const NotAvailable = "NA"

// Reachability status codes recorded on a vendor.
const (
	StatusReachable   = 200
	StatusUnreachable = 404
)

// SocialLinks groups the vendor's social profiles.
type SocialLinks struct {
	Instagram  string `json:"instagram"`
	GoogleMaps string `json:"google_maps"`
}

// Vendor is a food business with a menu source.
type Vendor struct {
	ID          int64             `json:"id"`
	Name        string            `json:"vendor_name"`
	MenuURL     string            `json:"menu_url"`
	Website     string            `json:"website"`
	SocialLinks SocialLinks       `json:"social_links"`
	ReviewLinks map[string]string `json:"review_links"`
	Description string            `json:"vendor_description"`
	Logo        string            `json:"vendor_logo"`
	StatusCode  int               `json:"status_code"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Reachable reports whether the last probe of the menu URL succeeded.
func (v Vendor) Reachable() bool {
	return v.StatusCode == StatusReachable
}

// MetadataSource is the URL used for vendor metadata scrapes: the website
// when one is known, otherwise the menu URL.
func (v Vendor) MetadataSource() string {
	if present(v.Website) {
		return v.Website
	}
	return v.MenuURL
}

// VendorStatus is the reachability summary for a vendor.
type VendorStatus struct {
	Name        string    `json:"vendor_name"`
	MenuURL     string    `json:"menu_url"`
	StatusCode  int       `json:"status_code"`
	LastUpdated time.Time `json:"last_updated"`
}

// Status returns the reachability summary for v.
func (v Vendor) Status() VendorStatus {
	return VendorStatus{
		Name:        v.Name,
		MenuURL:     v.MenuURL,
		StatusCode:  v.StatusCode,
		LastUpdated: v.LastUpdated,
	}
}

// Meal is one stored menu item. Absent fields hold NotAvailable.
type Meal struct {
	ID               int64  `json:"id"`
	VendorID         int64  `json:"vendor_id"`
	Name             string `json:"meal_name"`
	Description      string `json:"description"`
	Ingredients      string `json:"ingredients"`
	DietaryAlignment string `json:"dietary_alignment"`
	Price            string `json:"price"`
	Photos           string `json:"meal_photos"`
	URL              string `json:"url"`
}

// ScrapeJob is an in-memory request to fetch a vendor's meals.
type ScrapeJob struct {
	ID         string
	VendorID   int64
	MenuURL    string
	EnqueuedAt time.Time
}
