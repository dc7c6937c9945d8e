package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"taravani/pkg/domain"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var clockRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// TimeBand is a coarse birth time offered when the exact time is unknown.
type TimeBand struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var TimeBands = []TimeBand{
	{Value: "00:00", Label: "Midnight"},
	{Value: "06:00", Label: "Early Morning"},
	{Value: "12:00", Label: "Noon"},
	{Value: "18:00", Label: "Evening"},
}

// DefaultTimeBand is used when approximate time is requested without a band.
const DefaultTimeBand = "12:00"

const (
	MaxNameLength    = 200
	MaxPlaceLength   = 200
	MinMessageLength = 10
	MaxMessageLength = 5000
)

// ReadingPayload is the raw submission body.
type ReadingPayload struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	DateOfBirth     string `json:"dateOfBirth"`
	TimeOfBirth     string `json:"timeOfBirth"`
	ApproximateTime bool   `json:"approximateTime"`
	PlaceOfBirth    string `json:"placeOfBirth"`
	FocusArea       string `json:"focusArea"`
	Consent1        bool   `json:"consent1"`
	Consent2        bool   `json:"consent2"`
}

type ContactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type PaymentPayload struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	ReadingID string `json:"readingId"`
}

// ValidateReading checks a submission and returns the normalized input.
// Every failing field is reported, not only the first.
func ValidateReading(p ReadingPayload, now time.Time) (domain.ReadingInput, error) {
	var v validator
	in := domain.ReadingInput{
		Name:            strings.TrimSpace(p.FullName),
		Email:           strings.ToLower(strings.TrimSpace(p.Email)),
		ApproximateTime: p.ApproximateTime,
		PlaceOfBirth:    strings.TrimSpace(p.PlaceOfBirth),
		FocusArea:       domain.FocusArea(strings.TrimSpace(p.FocusArea)),
	}

	v.required("fullName", in.Name, "Name is required")
	v.maxLen("fullName", in.Name, MaxNameLength)
	v.email("email", in.Email)

	dob, err := parseDate(p.DateOfBirth)
	switch {
	case strings.TrimSpace(p.DateOfBirth) == "":
		v.add("dateOfBirth", "Date of birth is required")
	case err != nil:
		v.add("dateOfBirth", "Date of birth must be a valid date (YYYY-MM-DD)")
	case dob.After(now):
		v.add("dateOfBirth", "Date of birth cannot be in the future")
	default:
		in.DateOfBirth = dob
	}

	tob := strings.TrimSpace(p.TimeOfBirth)
	if p.ApproximateTime {
		if tob == "" {
			tob = DefaultTimeBand
		}
		if !IsTimeBand(tob) {
			v.add("timeOfBirth", "Approximate time must be one of the offered time bands")
		}
	} else {
		switch {
		case tob == "":
			v.add("timeOfBirth", "Time of birth is required")
		case !clockRegex.MatchString(tob):
			v.add("timeOfBirth", "Time of birth must be in HH:MM format")
		}
	}
	in.TimeOfBirth = tob

	v.required("placeOfBirth", in.PlaceOfBirth, "Place of birth is required")
	v.maxLen("placeOfBirth", in.PlaceOfBirth, MaxPlaceLength)
	if !in.FocusArea.Valid() {
		v.add("focusArea", "Please select a focus area")
	}
	if !p.Consent1 {
		v.add("consent1", "You must acknowledge that readings are for guidance only")
	}
	if !p.Consent2 {
		v.add("consent2", "You must consent to data processing")
	}

	if err := v.err(); err != nil {
		return domain.ReadingInput{}, err
	}
	return in, nil
}

// ValidateContact checks a contact form message.
func ValidateContact(p ContactPayload) (ContactPayload, error) {
	var v validator
	out := ContactPayload{
		Name:    strings.TrimSpace(p.Name),
		Email:   strings.ToLower(strings.TrimSpace(p.Email)),
		Message: strings.TrimSpace(p.Message),
	}
	v.required("name", out.Name, "Name is required")
	v.maxLen("name", out.Name, MaxNameLength)
	v.email("email", out.Email)
	if utf8.RuneCountInString(out.Message) < MinMessageLength {
		v.add("message", fmt.Sprintf("Message must be at least %d characters", MinMessageLength))
	}
	v.maxLen("message", out.Message, MaxMessageLength)
	if err := v.err(); err != nil {
		return ContactPayload{}, err
	}
	return out, nil
}

// ValidatePayment checks that a verification callback carries every field.
func ValidatePayment(p PaymentPayload) (PaymentPayload, error) {
	var v validator
	out := PaymentPayload{
		OrderID:   strings.TrimSpace(p.OrderID),
		PaymentID: strings.TrimSpace(p.PaymentID),
		Signature: p.Signature,
		ReadingID: strings.TrimSpace(p.ReadingID),
	}
	v.required("razorpay_order_id", out.OrderID, "Order id is required")
	v.required("razorpay_payment_id", out.PaymentID, "Payment id is required")
	v.required("razorpay_signature", out.Signature, "Signature is required")
	v.required("readingId", out.ReadingID, "Reading id is required")
	if err := v.err(); err != nil {
		return PaymentPayload{}, err
	}
	return out, nil
}

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

func IsTimeBand(s string) bool {
	for _, b := range TimeBands {
		if b.Value == s {
			return true
		}
	}
	return false
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

func (v *validator) required(field, value, msg string) {
	if value == "" {
		v.add(field, msg)
	}
}

func (v *validator) maxLen(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Must be at most %d characters", max))
	}
}

func (v *validator) email(field, value string) {
	if value == "" {
		v.add(field, "Email is required")
		return
	}
	if !emailRegex.MatchString(value) {
		v.add(field, "Invalid email address")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
