package controller

import (
	"errors"
	"net/http"
	"strconv"
)

// parseYearQuery returns the year filter from the request; 0 means no filter.
func parseYearQuery(r *http.Request) (int, error) {
	s := r.URL.Query().Get("year")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'year' (expected integer)")
	}
	if n < 0 {
		return 0, errors.New("'year' must be >= 0")
	}
	return n, nil
}
