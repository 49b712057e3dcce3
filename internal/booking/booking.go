// Package booking is the concierge's directory of reservations, loaded from
// a JSON object keyed by booking number.
package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/comigor/guest-assistant/internal/logger"
)

const (
	exampleNumbers = "Example booking numbers: BK001, BK002, BK003"
	numberFormat   = "Booking numbers should be in format BKxxx (e.g., BK001)"
)

// Preferences are the guest's stated wishes for the stay.
type Preferences struct {
	RoomType            string   `json:"room_type"`
	Capacity            int      `json:"capacity"`
	Dietary             string   `json:"dietary"`
	SpecialRequests     []string `json:"special_requests"`
	PreferredActivities []string `json:"preferred_activities"`
	Children            bool     `json:"children"`
}

// Booking is one reservation.
type Booking struct {
	Number      string      `json:"-"`
	GuestName   string      `json:"guest_name"`
	GuestAge    int         `json:"guest_age"`
	RoomNumber  string      `json:"room_number"`
	CheckIn     string      `json:"check_in"`
	CheckOut    string      `json:"check_out"`
	Preferences Preferences `json:"preferences"`
}

// LookupError explains why a booking number did not resolve.
type LookupError struct {
	Reason  string
	Hint    string
	Format  string
	Example string
}

func (e *LookupError) Error() string {
	var b strings.Builder
	b.WriteString("Error: " + e.Reason)
	if e.Hint != "" {
		b.WriteString("\nHint: " + e.Hint)
	}
	if e.Format != "" {
		b.WriteString("\nFormat: " + e.Format)
	}
	if e.Example != "" {
		b.WriteString("\n" + e.Example)
	}
	return b.String()
}

// Directory resolves booking numbers.
type Directory struct {
	bookings map[string]Booking
}

// NewDirectory builds a directory from bookings keyed by number.
func NewDirectory(bookings map[string]Booking) *Directory {
	d := &Directory{bookings: make(map[string]Booking, len(bookings))}
	for number, b := range bookings {
		b.Number = number
		d.bookings[number] = b
	}
	return d
}

// Load reads the JSON file at path. A missing file yields an empty directory.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.L.Warn("bookings file not found; directory is empty", "path", path)
		return NewDirectory(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("booking: read %s: %w", path, err)
	}
	var bookings map[string]Booking
	if err := json.Unmarshal(raw, &bookings); err != nil {
		return nil, fmt.Errorf("booking: decode %s: %w", path, err)
	}
	logger.L.Info("loaded bookings", "count", len(bookings), "path", path)
	return NewDirectory(bookings), nil
}

// Len returns the number of bookings.
func (d *Directory) Len() int { return len(d.bookings) }

// Lookup returns the booking for number or a *LookupError.
func (d *Directory) Lookup(number string) (Booking, error) {
	if number == "" {
		return Booking{}, &LookupError{
			Reason:  "Please provide a booking number. Format: BKxxx (e.g., BK001, BK002)",
			Example: exampleNumbers,
		}
	}
	b, ok := d.bookings[number]
	if !ok {
		return Booking{}, &LookupError{
			Reason: fmt.Sprintf("Booking number '%s' not found. Please check your booking number.", number),
			Hint:   fmt.Sprintf("Available booking numbers for testing: %s...", strings.Join(d.sample(5), ", ")),
			Format: numberFormat,
		}
	}
	return b, nil
}

func (d *Directory) sample(n int) []string {
	numbers := make([]string, 0, len(d.bookings))
	for number := range d.bookings {
		numbers = append(numbers, number)
	}
	slices.Sort(numbers)
	if len(numbers) > n {
		numbers = numbers[:n]
	}
	return numbers
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// Format renders the guest information block given to the assistant.
func (b Booking) Format() string {
	p := b.Preferences
	return fmt.Sprintf(`Guest Information:
- Name: %s (Age: %d)
- Room: %s
- Check-in: %s
- Check-out: %s

Room Details:
- Type: %s
- Capacity: %d people
- Children: %s

Preferences:
- Dietary: %s
- Special Requests: %s
- Preferred Activities: %s`,
		b.GuestName, b.GuestAge, b.RoomNumber, b.CheckIn, b.CheckOut,
		p.RoomType, p.Capacity, yesNo(p.Children),
		p.Dietary, strings.Join(p.SpecialRequests, ", "), strings.Join(p.PreferredActivities, ", "))
}
