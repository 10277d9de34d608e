package billstore

import (
	"net/url"
	"strings"

	"github.com/mmynk/splitqr/internal/models"
)

// QueryParam is the URL query parameter naming the bill in a scanned link.
const QueryParam = "bill"

// BillIDFromQuery returns the bill named by ?bill=, or models.DefaultBillID when the
// parameter is absent or not a usable document ID.
func BillIDFromQuery(values url.Values) string {
	id := strings.TrimSpace(values.Get(QueryParam))
	if id == "" || Ref(id).Validate() != nil {
		return models.DefaultBillID
	}
	return id
}

// BillIDFromURL extracts the bill ID from a scanned link. Unparseable links fall back to
// models.DefaultBillID.
func BillIDFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return models.DefaultBillID
	}
	return BillIDFromQuery(u.Query())
}

