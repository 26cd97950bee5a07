package batch

import (
	"fmt"
	"strconv"
	"strings"

	"stdimage/internal/models"
)

// Route names a field as app.model.field, optionally followed by ":N" to
// skip the first N records.
type Route struct {
	App   string
	Model string
	Field string
	Start int
}

func (r Route) String() string {
	return r.App + "." + r.Model + "." + r.Field
}

func routeError(s string) error {
	return models.NewConfigError(fmt.Sprintf(
		"Error parsing field_path '%s'. Use format <app.model.field app.model.field>.", s))
}

func ParseRoute(s string) (Route, error) {
	name, start, hasStart := strings.Cut(s, ":")

	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return Route{}, routeError(s)
	}
	for _, p := range parts {
		if p == "" {
			return Route{}, routeError(s)
		}
	}

	r := Route{App: parts[0], Model: parts[1], Field: parts[2]}
	if hasStart {
		n, err := strconv.Atoi(start)
		if err != nil || n < 0 {
			return Route{}, routeError(s)
		}
		r.Start = n
	}
	return r, nil
}

// ParseRoutes parses every argument, failing on the first malformed one.
func ParseRoutes(args []string) ([]Route, error) {
	routes := make([]Route, 0, len(args))
	for _, arg := range args {
		r, err := ParseRoute(arg)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}
