package email

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/openclub/courtbook/internal/models"
)

// FormatContactPhone renders a facility contact number in national
// format. Unparseable numbers come back trimmed but otherwise untouched
// so a typo in facility data never suppresses the contact line.
func FormatContactPhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL)
}

// ContactLine builds the footer line pointing members at the facility's
// front desk.
func ContactLine(facility models.Facility) string {
	phone := FormatContactPhone(facility.ContactPhone)
	if phone == "" {
		return ""
	}
	return fmt.Sprintf("Questions? Call %s at %s.", facility.Name, phone)
}
