package models

import "time"

// EnrollmentRole distinguishes a user's function within a single course.
type EnrollmentRole string

const (
	EnrollmentRoleStudent EnrollmentRole = "STUDENT"
	EnrollmentRoleTeacher EnrollmentRole = "TEACHER"
)

// Course is a class offering identified by a URL slug.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Enrollment links a user to a course with a role and an instrument.
// Unique per (user, course).
type Enrollment struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id"`
	CourseID   string         `db:"course_id" json:"course_id"`
	Role       EnrollmentRole `db:"role" json:"role"`
	Instrument string         `db:"instrument" json:"instrument"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RosterEntry enriches Enrollment with user identity for roster listings.
type RosterEntry struct {
	Enrollment
	Username string `db:"username" json:"username"`
	Name     string `db:"name" json:"name"`
	Grade    string `db:"grade" json:"grade"`
}
