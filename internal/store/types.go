package store

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used as the extraction key.
const DateLayout = "2006-01-02"

// Attendance holds the per-class attendance counters reported by producers.
type Attendance struct {
	Reserved  int `json:"reservados"`
	Attended  int `json:"asistidos"`
	NoShow    int `json:"noShow"`
	LeftEarly int `json:"salidaAnticipada"`
	Confirmed int `json:"confirmados"`
	Canceled  int `json:"cancelados"`
	Absent    int `json:"ausentes"`
}

func (a *Attendance) add(o Attendance) {
	a.Reserved += o.Reserved
	a.Attended += o.Attended
	a.NoShow += o.NoShow
	a.LeftEarly += o.LeftEarly
	a.Confirmed += o.Confirmed
	a.Canceled += o.Canceled
	a.Absent += o.Absent
}

// Class is a single scheduled class belonging to an extraction. ID,
// ExtractionID and Fecha are assigned by the store.
type Class struct {
	ID           int64  `json:"id,omitempty"`
	ExtractionID string `json:"extractionId,omitempty"`
	Fecha        string `json:"fecha,omitempty"`
	Name         string `json:"nombre"`
	StartTime    string `json:"horaInicio"`
	EndTime      string `json:"horaFin"`
	Instructor   string `json:"instructor"`
	Attendance
}

// Extraction is the canonical set of classes scraped for one date.
type Extraction struct {
	ID          string    `json:"id"`
	Fecha       string    `json:"fecha"`
	URL         string    `json:"url,omitempty"`
	Timestamp   string    `json:"timestamp,omitempty"`
	SourceRole  string    `json:"sourceRole"`
	SourceID    string    `json:"sourceId"`
	TotalClases int       `json:"totalClases"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Classes     []Class   `json:"clases"`
}

// Submission is a producer's extraction as handed to ReplaceByDate.
type Submission struct {
	Fecha       string
	URL         string
	Timestamp   string
	SourceRole  string
	SourceID    string
	TotalClases int
	Classes     []Class
}

// Stats aggregates everything currently held by the store.
type Stats struct {
	Extractions int        `json:"extracciones"`
	Classes     int        `json:"clases"`
	Instructors int        `json:"instructores"`
	FirstDate   string     `json:"primeraFecha,omitempty"`
	LastDate    string     `json:"ultimaFecha,omitempty"`
	Attendance  Attendance `json:"asistencia"`
}

// ValidDate reports whether fecha is a calendar day in DateLayout.
func ValidDate(fecha string) error {
	if fecha == "" {
		return fmt.Errorf("fecha is required")
	}
	if _, err := time.Parse(DateLayout, fecha); err != nil {
		return fmt.Errorf("fecha %q is not a %s date", fecha, DateLayout)
	}
	return nil
}

// instructorKey is the form instructor names are matched and counted by.
// Folding happens here rather than in SQL, which only folds ASCII.
func instructorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
