package upstream

// Health is the analytics server's /health response.
type Health struct {
	Status       string `json:"status"`        // "ok" while the server is up
	DBConnection string `json:"db_connection"` // "Connected" or "Unavailable"
}

// OK reports whether the server is up and has its database.
func (h Health) OK() bool {
	return h.Status == "ok" && h.DBConnection == "Connected"
}
