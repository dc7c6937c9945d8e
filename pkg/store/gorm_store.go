package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"taravani/pkg/domain"
)

type GormStoreOptions struct {
	SkipMigrations bool
	MaxOpenConns   int
}

type GormStoreOption func(*GormStoreOptions)

// WithoutMigrations opens the store without applying schema migrations.
func WithoutMigrations() GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SkipMigrations = true
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MaxOpenConns = n
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore applies migrations and opens the DB. dsn must be a postgres:// URL.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if !opts.SkipMigrations {
		if err := Migrate(dsn); err != nil {
			return nil, err
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	return &GormStore{db: db}, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateReading inserts a new reading.
func (s *GormStore) CreateReading(ctx context.Context, r domain.Reading) error {
	model := readingToModel(r)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetReading retrieves a reading.
func (s *GormStore) GetReading(ctx context.Context, id string) (domain.Reading, bool, error) {
	var model ReadingModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Reading{}, false, nil
		}
		return domain.Reading{}, false, err
	}
	return readingFromModel(model), true, nil
}

// ListReadings returns readings newest first. PDF bytes are not loaded.
func (s *GormStore) ListReadings(ctx context.Context, f ReadingFilter) ([]domain.Reading, error) {
	var models []ReadingModel
	tx := s.db.WithContext(ctx).
		Omit("report_pdf_data").
		Order("created_at DESC")
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Reading, 0, len(models))
	for _, m := range models {
		res = append(res, readingFromModel(m))
	}
	return res, nil
}

// UpdateReading applies a patch and returns the updated reading.
func (s *GormStore) UpdateReading(ctx context.Context, id string, p ReadingPatch) (domain.Reading, bool, error) {
	updates, err := patchUpdates(p)
	if err != nil {
		return domain.Reading{}, false, err
	}
	var out domain.Reading
	found := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ReadingModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var model ReadingModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		out = readingFromModel(model)
		found = true
		return nil
	})
	if err != nil {
		return domain.Reading{}, false, err
	}
	return out, found, nil
}

func patchUpdates(p ReadingPatch) (map[string]any, error) {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if p.Status != nil {
		updates["status"] = string(*p.Status)
	}
	if p.PaymentStatus != nil {
		updates["payment_status"] = nullString(string(*p.PaymentStatus))
	}
	if p.ReportText != nil {
		updates["report_text"] = *p.ReportText
	}
	if p.ReportPDF != nil {
		path, data, size := pdfColumns(*p.ReportPDF)
		updates["report_pdf_path"] = path
		updates["report_pdf_data"] = data
		updates["report_pdf_size"] = size
	}
	if p.ReportSentAt != nil {
		updates["report_sent_at"] = p.ReportSentAt.UTC()
	}
	if p.RazorpayOrderID != nil {
		updates["razorpay_order_id"] = nullString(*p.RazorpayOrderID)
	}
	if p.RazorpayPaymentID != nil {
		updates["razorpay_payment_id"] = nullString(*p.RazorpayPaymentID)
	}
	if p.PaymentNotes != nil {
		raw, err := json.Marshal(p.PaymentNotes)
		if err != nil {
			return nil, fmt.Errorf("encode payment notes: %w", err)
		}
		updates["payment_notes"] = raw
	}
	return updates, nil
}

// DeleteReading removes a reading and its email logs.
func (s *GormStore) DeleteReading(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&ReadingModel{}, "id = ?", id).Error
}

// PurgeExpiredReadings deletes every reading whose deleteAt is at or before cutoff.
func (s *GormStore) PurgeExpiredReadings(ctx context.Context, cutoff time.Time) ([]PurgedReading, error) {
	var models []ReadingModel
	err := s.db.WithContext(ctx).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "report_pdf_path"}}}).
		Where("delete_at <= ?", cutoff.UTC()).
		Delete(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]PurgedReading, 0, len(models))
	for _, m := range models {
		p := PurgedReading{ID: m.ID}
		if m.ReportPDFPath != nil {
			p.PDFPath = *m.ReportPDFPath
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateContact inserts a contact message.
func (s *GormStore) CreateContact(ctx context.Context, c domain.Contact) error {
	model := contactToModel(c)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListContacts returns contacts newest first.
func (s *GormStore) ListContacts(ctx context.Context, f ContactFilter) ([]domain.Contact, error) {
	var models []ContactModel
	tx := s.db.WithContext(ctx).Order("created_at DESC").Limit(f.limit())
	if f.Read != nil {
		tx = tx.Where("read = ?", *f.Read)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contact, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

// SetContactRead flips the read flag of a contact.
func (s *GormStore) SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, bool, error) {
	res := s.db.WithContext(ctx).Model(&ContactModel{}).Where("id = ?", id).Update("read", read)
	if res.Error != nil {
		return domain.Contact{}, false, res.Error
	}
	var model ContactModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Contact{}, false, nil
		}
		return domain.Contact{}, false, err
	}
	return contactFromModel(model), true, nil
}

// EnsureAdmin inserts the admin unless the email is taken. It reports whether a row was created.
func (s *GormStore) EnsureAdmin(ctx context.Context, a domain.Admin) (bool, error) {
	model := adminToModel(a)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetAdminByEmail looks up an admin by email.
func (s *GormStore) GetAdminByEmail(ctx context.Context, email string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

// GetAdminByID returns an admin by ID.
func (s *GormStore) GetAdminByID(ctx context.Context, id string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

// SetAdminPassword replaces the stored password hash.
func (s *GormStore) SetAdminPassword(ctx context.Context, id, hash string) error {
	res := s.db.WithContext(ctx).Model(&AdminModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash": hash,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEmailLog records an email dispatch attempt.
func (s *GormStore) AppendEmailLog(ctx context.Context, l domain.EmailLog) error {
	model := emailLogToModel(l)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListEmailLogs returns the attempts for a reading, oldest first.
func (s *GormStore) ListEmailLogs(ctx context.Context, readingID string) ([]domain.EmailLog, error) {
	var models []EmailLogModel
	if err := s.db.WithContext(ctx).Where("reading_id = ?", readingID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.EmailLog, 0, len(models))
	for _, m := range models {
		res = append(res, emailLogFromModel(m))
	}
	return res, nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func pdfColumns(p domain.ReportPDF) (*string, []byte, *int64) {
	size := p.Size
	switch {
	case p.IsInline() && len(p.Data) > 0:
		size = int64(len(p.Data))
		return nil, p.Data, &size
	case p.IsStored() && p.Path != "":
		return nullString(p.Path), nil, &size
	}
	return nil, nil, nil
}

func readingToModel(r domain.Reading) ReadingModel {
	path, data, size := pdfColumns(r.ReportPDF)
	m := ReadingModel{
		ID:                r.ID,
		Name:              r.Name,
		Email:             r.Email,
		DateOfBirth:       r.DateOfBirth,
		TimeOfBirth:       r.TimeOfBirth,
		ApproximateTime:   r.ApproximateTime,
		PlaceOfBirth:      r.PlaceOfBirth,
		FocusArea:         string(r.FocusArea),
		Status:            string(r.Status),
		PaymentStatus:     nullString(string(r.PaymentStatus)),
		Currency:          nullString(r.Currency),
		ReportText:        nullString(r.ReportText),
		ReportPDFPath:     path,
		ReportPDFData:     data,
		ReportPDFSize:     size,
		ReportSentAt:      r.ReportSentAt,
		RazorpayOrderID:   nullString(r.RazorpayOrderID),
		RazorpayPaymentID: nullString(r.RazorpayPaymentID),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		DeleteAt:          r.DeleteAt,
	}
	if r.Amount > 0 {
		amount := r.Amount
		m.Amount = &amount
	}
	if len(r.PaymentNotes) > 0 {
		m.PaymentNotes, _ = json.Marshal(r.PaymentNotes)
	}
	return m
}

func readingFromModel(m ReadingModel) domain.Reading {
	r := domain.Reading{
		ID:                m.ID,
		Name:              m.Name,
		Email:             m.Email,
		DateOfBirth:       m.DateOfBirth,
		TimeOfBirth:       m.TimeOfBirth,
		ApproximateTime:   m.ApproximateTime,
		PlaceOfBirth:      m.PlaceOfBirth,
		FocusArea:         domain.FocusArea(m.FocusArea),
		Status:            domain.ReadingStatus(m.Status),
		PaymentStatus:     domain.PaymentStatus(derefString(m.PaymentStatus)),
		Currency:          derefString(m.Currency),
		ReportText:        derefString(m.ReportText),
		ReportSentAt:      m.ReportSentAt,
		RazorpayOrderID:   derefString(m.RazorpayOrderID),
		RazorpayPaymentID: derefString(m.RazorpayPaymentID),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		DeleteAt:          m.DeleteAt,
	}
	if m.Amount != nil {
		r.Amount = *m.Amount
	}
	var size int64
	if m.ReportPDFSize != nil {
		size = *m.ReportPDFSize
	}
	// Listings omit the bytes, so an inline PDF is recognised by its size alone.
	switch {
	case len(m.ReportPDFData) > 0:
		r.ReportPDF = domain.ReportPDF{Kind: domain.PDFInline, Data: m.ReportPDFData, Size: int64(len(m.ReportPDFData))}
	case m.ReportPDFPath != nil && *m.ReportPDFPath != "":
		r.ReportPDF = domain.StoredPDF(*m.ReportPDFPath, size)
	case size > 0:
		r.ReportPDF = domain.ReportPDF{Kind: domain.PDFInline, Size: size}
	}
	if len(m.PaymentNotes) > 0 {
		_ = json.Unmarshal(m.PaymentNotes, &r.PaymentNotes)
	}
	return r
}

func contactToModel(c domain.Contact) ContactModel {
	return ContactModel{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Message:   c.Message,
		Read:      c.Read,
		CreatedAt: c.CreatedAt,
	}
}

func contactFromModel(m ContactModel) domain.Contact {
	return domain.Contact{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Message:   m.Message,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

func adminToModel(a domain.Admin) AdminModel {
	return AdminModel{
		ID:           a.ID,
		Email:        a.Email,
		Name:         a.Name,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func adminFromModel(m AdminModel) domain.Admin {
	return domain.Admin{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func emailLogToModel(l domain.EmailLog) EmailLogModel {
	return EmailLogModel{
		ID:           l.ID,
		ReadingID:    nullString(l.ReadingID),
		Kind:         string(l.Kind),
		Recipient:    l.Recipient,
		Subject:      l.Subject,
		Status:       string(l.Status),
		ErrorMessage: l.ErrorMessage,
		CreatedAt:    l.CreatedAt,
	}
}

func emailLogFromModel(m EmailLogModel) domain.EmailLog {
	return domain.EmailLog{
		ID:           m.ID,
		ReadingID:    derefString(m.ReadingID),
		Kind:         domain.EmailKind(m.Kind),
		Recipient:    m.Recipient,
		Subject:      m.Subject,
		Status:       domain.EmailStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
	}
}
