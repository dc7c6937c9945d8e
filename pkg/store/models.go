package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Tables are created by the SQL migrations.
type ReadingModel struct {
	ID                string    `gorm:"primaryKey"`
	Name              string    `gorm:"not null"`
	Email             string    `gorm:"not null"`
	DateOfBirth       time.Time `gorm:"type:date;not null"`
	TimeOfBirth       string    `gorm:"not null"`
	ApproximateTime   bool      `gorm:"not null"`
	PlaceOfBirth      string    `gorm:"not null"`
	FocusArea         string    `gorm:"not null"`
	Status            string    `gorm:"not null;index"`
	PaymentStatus     *string
	Amount            *int64
	Currency          *string
	ReportText        *string
	ReportPDFPath     *string `gorm:"column:report_pdf_path"`
	ReportPDFData     []byte  `gorm:"column:report_pdf_data"`
	ReportPDFSize     *int64  `gorm:"column:report_pdf_size"`
	ReportSentAt      *time.Time
	RazorpayOrderID   *string
	RazorpayPaymentID *string
	PaymentNotes      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time      `gorm:"not null;index"`
	UpdatedAt         time.Time      `gorm:"not null"`
	DeleteAt          time.Time      `gorm:"not null;index"`
}

func (ReadingModel) TableName() string { return "readings" }

type ContactModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"not null"`
	Message   string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (ContactModel) TableName() string { return "contacts" }

type AdminModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (AdminModel) TableName() string { return "admins" }

type EmailLogModel struct {
	ID           string  `gorm:"primaryKey"`
	ReadingID    *string `gorm:"index"`
	Kind         string  `gorm:"not null"`
	Recipient    string  `gorm:"not null"`
	Subject      string  `gorm:"not null"`
	Status       string  `gorm:"not null"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"not null"`
}

func (EmailLogModel) TableName() string { return "email_logs" }
