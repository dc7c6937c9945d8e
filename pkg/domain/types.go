package domain

import "time"

// RetentionPeriod is how long a reading is kept after submission.
const RetentionPeriod = 30 * 24 * time.Hour

type ReadingStatus string

const (
	StatusNew        ReadingStatus = "NEW"
	StatusInProgress ReadingStatus = "IN_PROGRESS"
	StatusSent       ReadingStatus = "SENT"
	StatusFailed     ReadingStatus = "FAILED"
)

func (s ReadingStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusSent, StatusFailed:
		return true
	}
	return false
}

// PaymentStatus is empty for readings submitted through the unpaid flow.
type PaymentStatus string

const (
	PaymentNone    PaymentStatus = ""
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type FocusArea string

const (
	FocusCareer        FocusArea = "Career"
	FocusRelationships FocusArea = "Relationships"
	FocusHealth        FocusArea = "Health"
	FocusMoney         FocusArea = "Money"
	FocusGeneral       FocusArea = "General"
)

var FocusAreas = []FocusArea{FocusCareer, FocusRelationships, FocusHealth, FocusMoney, FocusGeneral}

func (f FocusArea) Valid() bool {
	for _, v := range FocusAreas {
		if f == v {
			return true
		}
	}
	return false
}

type PDFKind string

const (
	PDFNone   PDFKind = ""
	PDFStored PDFKind = "stored"
	PDFInline PDFKind = "inline"
)

// ReportPDF is either absent, a reference to a stored object, or inline bytes.
// Data may be nil for an inline PDF loaded in a listing.
type ReportPDF struct {
	Kind PDFKind `json:"kind,omitempty"`
	Path string  `json:"path,omitempty"`
	Data []byte  `json:"-"`
	Size int64   `json:"size,omitempty"`
}

func NoPDF() ReportPDF { return ReportPDF{} }

func StoredPDF(path string, size int64) ReportPDF {
	return ReportPDF{Kind: PDFStored, Path: path, Size: size}
}

func InlinePDF(data []byte) ReportPDF {
	buf := make([]byte, len(data))
	copy(buf, data)
	return ReportPDF{Kind: PDFInline, Data: buf, Size: int64(len(buf))}
}

func (p ReportPDF) Present() bool { return p.Kind != PDFNone }

func (p ReportPDF) IsInline() bool { return p.Kind == PDFInline }

func (p ReportPDF) IsStored() bool { return p.Kind == PDFStored }

// ReadingInput is the validated, normalized intake payload.
type ReadingInput struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	DateOfBirth     time.Time `json:"dateOfBirth"`
	TimeOfBirth     string    `json:"timeOfBirth"`
	ApproximateTime bool      `json:"approximateTime"`
	PlaceOfBirth    string    `json:"placeOfBirth"`
	FocusArea       FocusArea `json:"focusArea"`
}

type Reading struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Email             string            `json:"email"`
	DateOfBirth       time.Time         `json:"dateOfBirth"`
	TimeOfBirth       string            `json:"timeOfBirth"`
	ApproximateTime   bool              `json:"approximateTime"`
	PlaceOfBirth      string            `json:"placeOfBirth"`
	FocusArea         FocusArea         `json:"focusArea"`
	Status            ReadingStatus     `json:"status"`
	PaymentStatus     PaymentStatus     `json:"paymentStatus,omitempty"`
	Amount            int64             `json:"amount,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	ReportText        string            `json:"reportText"`
	ReportPDF         ReportPDF         `json:"reportPdf"`
	ReportSentAt      *time.Time        `json:"reportSentAt,omitempty"`
	RazorpayOrderID   string            `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string            `json:"razorpayPaymentId,omitempty"`
	PaymentNotes      map[string]string `json:"paymentNotes,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	DeleteAt          time.Time         `json:"deleteAt"`
}

// NewReading builds a reading from validated input with its retention deadline fixed.
func NewReading(id string, in ReadingInput, now time.Time) Reading {
	return Reading{
		ID:              id,
		Name:            in.Name,
		Email:           in.Email,
		DateOfBirth:     in.DateOfBirth,
		TimeOfBirth:     in.TimeOfBirth,
		ApproximateTime: in.ApproximateTime,
		PlaceOfBirth:    in.PlaceOfBirth,
		FocusArea:       in.FocusArea,
		Status:          StatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
		DeleteAt:        now.Add(RetentionPeriod),
	}
}

type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type EmailKind string

const (
	EmailConfirmation EmailKind = "confirmation"
	EmailReport       EmailKind = "report"
	EmailContact      EmailKind = "contact"
	EmailTest         EmailKind = "test"
)

type EmailStatus string

const (
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
	EmailSkipped EmailStatus = "skipped"
)

// EmailLog records a single dispatch attempt.
type EmailLog struct {
	ID           string      `json:"id"`
	ReadingID    string      `json:"readingId,omitempty"`
	Kind         EmailKind   `json:"kind"`
	Recipient    string      `json:"recipient"`
	Subject      string      `json:"subject"`
	Status       EmailStatus `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}
