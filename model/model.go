// Package model names the collections of the e-learning domain.
package model

// Collection names.
const (
	Courses      = "courses"
	Users        = "users"
	Enrollments  = "enrollments"
	Certificates = "certificates"
)

// Collections lists every collection exposed by the API, in a stable order.
func Collections() []string {
	return []string{Courses, Users, Enrollments, Certificates}
}

// IsCollection reports whether name is one of the domain collections.
func IsCollection(name string) bool {
	for _, c := range Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// SearchField is the field searched when a request names none.
func SearchField(collection string) string {
	switch collection {
	case Courses:
		return "title"
	case Users:
		return "name"
	case Enrollments:
		return "status"
	case Certificates:
		return "courseTitle"
	default:
		return ""
	}
}
