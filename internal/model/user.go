package model

// User is a roster member. The roster is loaded once at startup and never
// mutated at runtime.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	Birthday  string `json:"birthday,omitempty"` // MM-DD
	BirthYear int    `json:"birthYear,omitempty"`
}
