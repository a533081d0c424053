package core

import (
	"errors"
	"strings"
	"time"
)

type (
	TxStatus  string
	Gateway   string
	Priority  string
	Frequency string

	AutopayStatus string

	Date struct {
		time.Time
	}

	User struct {
		ID             string
		Username       string
		Email          string
		CreatedAt      time.Time
		TotalBudget    Money
		CurrentBalance Money
	}

	Allocation struct {
		VaultID string
		Amount  Money
	}

	Transaction struct {
		ID          string
		Amount      Money
		Merchant    string
		Category    string
		Allocations []Allocation
		Timestamp   time.Time
		Status      TxStatus
		Gateway     Gateway
		Explanation string
	}

	Notification struct {
		ID        string
		Title     string
		Message   string
		Priority  Priority
		Timestamp time.Time
		Read      bool
	}

	// NotificationDraft is a notification before the store assigns id,
	// timestamp and read state.
	NotificationDraft struct {
		Title    string
		Message  string
		Priority Priority
	}

	// Revenue is an income record credited to the balance.
	Revenue struct {
		ID        string
		Amount    Money
		Source    string
		Timestamp time.Time
	}

	// Autopay is a scheduled payment charged to one vault.
	Autopay struct {
		ID        string
		OwnerID   string
		Name      string
		Amount    Money
		DueDate   Date
		VaultID   string
		Status    AutopayStatus
		Frequency Frequency
		LastRun   time.Time
	}
)

const (
	StatusCompleted TxStatus = "completed"
	StatusPending   TxStatus = "pending"
	StatusFailed    TxStatus = "failed"
)

const (
	Razorpay Gateway = "razorpay"
	Stripe   Gateway = "stripe"

	DefaultGateway = Razorpay
)

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const (
	AutopayActive  AutopayStatus = "active"
	AutopayPaused  AutopayStatus = "paused"
	AutopaySnoozed AutopayStatus = "snoozed"
)

// Categories used when the oracle gives no usable answer.
const (
	CategoryGeneral       = "General"
	CategoryUncategorized = "Uncategorized"
	CategoryEmergency     = "Emergency"
)

// Gateways lists the supported payment gateways.
func Gateways() []Gateway { return []Gateway{Razorpay, Stripe} }

func (g Gateway) IsValid() bool {
	return g == Razorpay || g == Stripe
}

// ParseGateway matches s case-insensitively.
func ParseGateway(s string) (Gateway, error) {
	g := Gateway(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", ErrUnknownGateway
	}
	return g, nil
}

func (f Frequency) IsValid() bool { return f == Weekly || f == Monthly }

func (s AutopayStatus) IsValid() bool {
	return s == AutopayActive || s == AutopayPaused || s == AutopaySnoozed
}

func (p Priority) IsValid() bool { return p == PriorityHigh || p == PriorityNormal }

// AllocatedTotal sums allocation amounts.
func AllocatedTotal(allocs []Allocation) Money {
	var total Money
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Merchant) == "" {
		return ErrEmptyMerchant
	}
	if len(t.Allocations) == 0 {
		return ErrAllocationIncomplete
	}
	if AllocatedTotal(t.Allocations) != t.Amount {
		return ErrAllocationIncomplete
	}
	if !t.Gateway.IsValid() {
		return ErrUnknownGateway
	}
	return nil
}

func (n NotificationDraft) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return errors.New("notification title is required")
	}
	if !n.Priority.IsValid() {
		return errors.New("invalid notification priority")
	}
	return nil
}

func (r Revenue) Validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Source) == "" {
		return ErrEmptySource
	}
	return nil
}

func (a Autopay) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.Join(ErrInvalidAutopay, errors.New("name is required"))
	}
	if err := a.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.VaultID) == "" {
		return errors.Join(ErrInvalidAutopay, errors.New("vault is required"))
	}
	if a.DueDate.IsZero() {
		return errors.Join(ErrInvalidAutopay, errors.New("due date is required"))
	}
	if !a.Status.IsValid() {
		return errors.Join(ErrInvalidAutopay, errors.New("invalid status"))
	}
	if !a.Frequency.IsValid() {
		return errors.Join(ErrInvalidAutopay, errors.New("invalid frequency"))
	}
	return nil
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string { return d.Format(time.DateOnly) }
