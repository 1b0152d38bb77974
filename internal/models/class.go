package models

import "sort"

// classSubjects maps a class label to the subjects taught in it.
var classSubjects = map[string][]string{
	"5":  {"Bangla", "English", "Math", "Science", "Social Studies", "Religion"},
	"6":  {"Bangla", "English", "Math", "Science", "Social Studies", "Religion"},
	"7":  {"Bangla", "English", "Math", "Science", "Geography", "Religion"},
	"8":  {"Bangla", "English", "Math", "Science", "Computer", "Religion"},
	"9":  {"Bangla", "English", "Math", "Physics", "Chemistry", "Biology"},
	"10": {"Bangla", "English", "Math", "Physics", "Chemistry", "Biology"},
	"11": {"Bangla", "English", "Higher Mathematics", "Physics", "Chemistry", "Biology"},
	"12": {"Bangla", "English", "Higher Mathematics", "Physics", "Chemistry", "Biology"},
}

// SubjectsForClass returns a copy of the subject list, empty for unknown classes.
func SubjectsForClass(classID string) []string {
	subjects := classSubjects[classID]
	out := make([]string, len(subjects))
	copy(out, subjects)
	return out
}

// KnownClass reports whether the label has a subject list.
func KnownClass(classID string) bool {
	_, ok := classSubjects[classID]
	return ok
}

// Classes returns the known class labels in numeric order.
func Classes() []string {
	out := make([]string, 0, len(classSubjects))
	for k := range classSubjects {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// ClassSubjects is the response shape for a class subject list.
type ClassSubjects struct {
	ClassID  string   `json:"class_id"`
	Subjects []string `json:"subjects"`
}
