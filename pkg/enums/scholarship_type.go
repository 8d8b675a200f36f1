package enums

import "fmt"

// ScholarshipType labels the discount scheme applied to a student.
type ScholarshipType string

const (
	ScholarshipTypeNone     ScholarshipType = "none"
	ScholarshipTypeAcademic ScholarshipType = "academic"
	ScholarshipTypeSocial   ScholarshipType = "social"
	ScholarshipTypeStaff    ScholarshipType = "staff"
)

var validScholarshipTypes = []ScholarshipType{
	ScholarshipTypeNone,
	ScholarshipTypeAcademic,
	ScholarshipTypeSocial,
	ScholarshipTypeStaff,
}

// String implements fmt.Stringer.
func (s ScholarshipType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ScholarshipType.
func (s ScholarshipType) IsValid() bool {
	for _, candidate := range validScholarshipTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScholarshipType converts raw input into a ScholarshipType.
func ParseScholarshipType(value string) (ScholarshipType, error) {
	for _, candidate := range validScholarshipTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scholarship type %q", value)
}
