// Package version хранит сведения о сборке. Значения проставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/checkout/internal/version.version=1.4.0 \
//	  -X github.com/vladislavdragonenkov/checkout/internal/version.commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает текущую сборку checkout-service.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает только номер сборки (для health и логов).
func GetVersion() string { return version }

func (b Build) String() string {
	return fmt.Sprintf("checkout-service %s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}

// Fields возвращает сведения о сборке в виде полей для logrus.
func (b Build) Fields() map[string]any {
	return map[string]any{
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}
