package attendance

import "time"

// Method is how a sign-in was captured.
type Method string

const (
	MethodManual    Method = "manual"
	MethodKiosk     Method = "kiosk"
	MethodQRCode    Method = "qr_code"
	MethodNFC       Method = "nfc"
	MethodBiometric Method = "biometric"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodKiosk, MethodQRCode, MethodNFC, MethodBiometric:
		return true
	default:
		return false
	}
}

const (
	maxLocationLen = 255
	maxNotesLen    = 1000
)

// Record is one visit.
type Record struct {
	ID              string
	UserID          int64
	CheckedInAt     time.Time
	CheckedOutAt    *time.Time
	DurationMinutes *int
	Method          Method
	Location        *string
	Notes           *string

	// Person is filled by the Service when a People source is configured.
	// Stores never set it.
	Person *Person
}

// Open reports whether the visit has not been closed yet.
func (r Record) Open() bool { return r.CheckedOutAt == nil }

// OpenRecord describes a record to insert in the open state.
// The store assigns the id.
type OpenRecord struct {
	UserID      int64
	CheckedInAt time.Time
	Method      Method
	Location    *string
	Notes       *string
}

// CloseRecord describes the sign-out transition for an open record.
type CloseRecord struct {
	ID              string
	CheckedOutAt    time.Time
	DurationMinutes int
}

// Counts aggregates records whose check-in falls within a range.
type Counts struct {
	Total       int
	Open        int
	Closed      int
	UniqueUsers int
}

// DayCount is the number of visits that started on Date (YYYY-MM-DD, register time zone).
type DayCount struct {
	Date  string
	Count int
}

const dateLayout = "2006-01-02"
