package appointment

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ID is the opaque identifier the appointment service hands out. The service
// has used both numeric and string ids, so decoding accepts either.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("decode id %s: not a string or number", data)
	}
	*id = ID(data)
	return nil
}

func (id ID) String() string { return string(id) }

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusConfirmed      Status = "CONFIRMED"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusNoShow         Status = "NO_SHOW"
)

var knownStatuses = map[Status]bool{
	StatusPendingPayment: true,
	StatusConfirmed:      true,
	StatusInProgress:     true,
	StatusCompleted:      true,
	StatusCancelled:      true,
	StatusNoShow:         true,
}

// NormalizeStatus upper-cases and trims a raw status. Values outside the known
// set are kept so they can be displayed, but Known reports false for them.
func NormalizeStatus(raw string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s Status) Known() bool { return knownStatuses[s] }

func (s *Status) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = ""
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	*s = NormalizeStatus(raw)
	return nil
}

// StatusFilter selects which appointments a load asks for. FilterAll (or the
// empty value) requests everything and hides cancelled appointments locally.
type StatusFilter string

const FilterAll StatusFilter = "ALL"

func ParseStatusFilter(raw string) StatusFilter {
	f := StatusFilter(strings.ToUpper(strings.TrimSpace(raw)))
	if f == "" {
		return FilterAll
	}
	return f
}

func (f StatusFilter) IsAll() bool { return f == "" || f == FilterAll }

// upstream is the status value passed to the appointment service.
func (f StatusFilter) upstream() string {
	if f.IsAll() {
		return ""
	}
	return string(f)
}

type Appointment struct {
	ID                  ID       `json:"id"`
	DoctorID            ID       `json:"doctorId"`
	PatientName         string   `json:"patientName"`
	DoctorName          string   `json:"doctorName"`
	AppointmentDateTime string   `json:"appointmentDateTime"`
	Status              Status   `json:"status"`
	ConsultationFee     *float64 `json:"consultationFee"`
	ClinicName          string   `json:"clinicName"`
	Reason              string   `json:"reason"`
}

// Start parses AppointmentDateTime. ok is false for missing or malformed values.
func (a Appointment) Start() (time.Time, bool) {
	t, err := ParseDateTime(a.AppointmentDateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (a Appointment) IsCancelled() bool { return a.Status == StatusCancelled }

func (a Appointment) IsCompleted() bool { return a.Status == StatusCompleted }

// Fee is the amount a completed appointment contributes to revenue.
// Missing and negative fees count as zero.
func (a Appointment) Fee() float64 {
	if a.ConsultationFee == nil || *a.ConsultationFee < 0 {
		return 0
	}
	return *a.ConsultationFee
}

type ConflictPair struct {
	First  Appointment
	Second Appointment
	Gap    time.Duration
}

type conflictPairJSON struct {
	First      Appointment `json:"first"`
	Second     Appointment `json:"second"`
	GapMinutes float64     `json:"gapMinutes"`
}

// MarshalJSON writes the gap in minutes, the unit used across the admin API.
func (p ConflictPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(conflictPairJSON{First: p.First, Second: p.Second, GapMinutes: p.Gap.Minutes()})
}

func (p *ConflictPair) UnmarshalJSON(data []byte) error {
	var w conflictPairJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = ConflictPair{
		First:  w.First,
		Second: w.Second,
		Gap:    time.Duration(w.GapMinutes * float64(time.Minute)),
	}
	return nil
}

type RevenueSummary struct {
	Total     float64 `json:"total"`
	Today     float64 `json:"today"`
	ThisWeek  float64 `json:"thisWeek"`
	ThisMonth float64 `json:"thisMonth"`
}

type RescheduleRequest struct {
	AppointmentID ID
	NewDateTime   time.Time
}

// Snapshot is the in-memory appointment list as of one completed load.
type Snapshot struct {
	Appointments []Appointment
	Filter       StatusFilter
	LoadedAt     time.Time
	Generation   uint64
}

// ConflictReport is the detector output published by the conflict worker.
type ConflictReport struct {
	GeneratedAt  time.Time      `json:"generatedAt"`
	Filter       StatusFilter   `json:"filter"`
	Appointments int            `json:"appointments"`
	Pairs        []ConflictPair `json:"pairs"`
}
