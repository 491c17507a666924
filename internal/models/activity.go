package models

// Activity is a unit of pedagogical work from the static catalog. Each
// activity requires the part of a piece matching its part type.
type Activity struct {
	ID               string `db:"id" json:"id"`
	ActivityTypeName string `db:"activity_type_name" json:"activity_type_name"`
	PartType         string `db:"part_type" json:"part_type"`
	Body             string `db:"body" json:"body"`
}
