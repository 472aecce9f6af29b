package templates

import (
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"
)

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 15:04")
}

func formatPool(n int) string {
	if n < 0 {
		return "any"
	}
	return fmt.Sprintf("%d cases", n)
}

func joinArms(arms []string) string {
	if len(arms) == 0 {
		return "-"
	}
	return strings.Join(arms, ", ")
}

func buildFilterURL(status string) templ.SafeURL {
	if status == "" {
		return templ.SafeURL("/")
	}
	return templ.SafeURL("/?status=" + status)
}
