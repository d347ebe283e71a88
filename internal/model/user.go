package model

// User is the authenticated operator of the control panel. The panel has a
// single admin account configured out of band, so only the name is carried.
type User struct {
	Username string `json:"username"`
}
