package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
)

// ParseQueryInt reads an integer query parameter, falling back to def when
// the parameter is absent.
func ParseQueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").
			WithDetails(map[string]string{name: "must be an integer"})
	}
	return value, nil
}

func SanitizeString(s string) string {
	return strings.TrimSpace(s)
}
